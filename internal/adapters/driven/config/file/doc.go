// Package file persists platform configurations in a TOML file under the
// parley config directory and watches it for out-of-band edits.
package file
