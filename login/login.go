// Package login installs the running binary as a start-at-login service:
// a LaunchAgent on macOS, an XDG autostart entry on Linux desktops.
package login
