//go:build windows

package privilege

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/windows"
)

// Check verifies the process is running elevated (Administrator), which
// Windows requires for raw socket access.
func Check() error {
	if isAdmin() {
		return nil
	}
	return fmt.Errorf("trippy requires Administrator privileges for raw socket access.\n\nRun as Administrator or use: runas /user:Administrator %s", strings.Join(os.Args, " "))
}

func isAdmin() bool {
	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	token := windows.Token(0)
	member, err := token.IsMember(sid)
	if err != nil {
		return false
	}
	return member
}
