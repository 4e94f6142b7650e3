// Package launch manages registering the bench monitor to start on login.
// Each platform has its own implementation file.
package launch

import "os"

// appPath returns the path to the currently running executable.
func appPath() (string, error) {
	return os.Executable()
}
