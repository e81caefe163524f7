package storage

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strings"
	"sync"
)

const qemuConfPath = "/etc/libvirt/qemu.conf"

// fallbackQEMUID is the Fedora/RHEL default uid/gid for the qemu user,
// used when neither qemu.conf nor the passwd database can answer.
const fallbackQEMUID = "107"

var qemuIdentity struct {
	once sync.Once
	uid  string
	gid  string
	err  error
}

// GetQEMUUserGroup resolves the uid and gid the hypervisor runs guest
// processes as. It prefers the user/group configured in qemu.conf, then
// the distro account names (qemu on Fedora, libvirt-qemu on Debian), then
// a hardcoded fallback. Pool definitions and the base-directory ACL repair
// both need this identity; the answer is cached for the process lifetime.
//
// A non-nil error means the fallback is in use, not that the returned ids
// are unusable.
func GetQEMUUserGroup() (uid, gid string, err error) {
	qemuIdentity.once.Do(func() {
		qemuIdentity.uid, qemuIdentity.gid, qemuIdentity.err = resolveQEMUUserGroup()
	})
	return qemuIdentity.uid, qemuIdentity.gid, qemuIdentity.err
}

func resolveQEMUUserGroup() (string, string, error) {
	if confUser, confGroup := parseQEMUConf(qemuConfPath); confUser != "" {
		if u, err := user.Lookup(confUser); err == nil {
			gid := u.Gid
			if confGroup != "" {
				if g, err := user.LookupGroup(confGroup); err == nil {
					gid = g.Gid
				}
			}
			return u.Uid, gid, nil
		}
	}

	for _, name := range []string{"qemu", "libvirt-qemu"} {
		if u, err := user.Lookup(name); err == nil {
			return u.Uid, u.Gid, nil
		}
	}

	return fallbackQEMUID, fallbackQEMUID,
		fmt.Errorf("could not determine QEMU user/group, using fallback UID/GID %s", fallbackQEMUID)
}

// parseQEMUConf extracts the user and group settings from a qemu.conf-style
// file. Missing file or settings yield empty strings.
func parseQEMUConf(path string) (username, groupname string) {
	file, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer file.Close() //nolint:errcheck

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "\"'")
		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}
	return username, groupname
}
