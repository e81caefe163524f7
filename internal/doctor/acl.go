package doctor

import (
	"fmt"
	"os/exec"

	"github.com/jbweber/dockvirt/internal/storage"
)

// repairBaseDirACL grants the hypervisor service account read+execute on
// baseDir via setfacl, and refreshes SELinux contexts via restorecon when
// present — the only two repairs in this package that require elevation.
// Both run through sudo, an explicit, visible escalation rather than Doctor
// running as root itself. The account is resolved from qemu.conf the same
// way the storage layer does, so hosts running QEMU as libvirt-qemu
// (Debian) get the right ACL entry, not a hardcoded "qemu".
func repairBaseDirACL(baseDir string) error {
	// A non-nil error still yields the distro-default fallback UID; the
	// repair is worth attempting with it.
	uid, _, _ := storage.GetQEMUUserGroup()
	if _, err := exec.LookPath("setfacl"); err == nil {
		cmd := exec.Command("sudo", "setfacl", "-R", "-m", "u:"+uid+":rx", baseDir)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("setfacl %s: %w: %s", baseDir, err, out)
		}
	}
	if _, err := exec.LookPath("restorecon"); err == nil {
		cmd := exec.Command("sudo", "restorecon", "-R", baseDir)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("restorecon %s: %w: %s", baseDir, err, out)
		}
	}
	return nil
}
