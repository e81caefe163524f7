package vm

import (
	"github.com/sirupsen/logrus"
)

// Down tears down the named VM: destroys its domain (idempotent — an
// absent domain is success) and deletes its work_dir. Safe to call
// repeatedly.
func Down(env *Environment, name string) error {
	log := env.log.WithFields(logrus.Fields{"vm": name, "op": "down"})

	if err := env.driver.Destroy(name); err != nil {
		return err
	}
	log.Debug("domain destroyed")

	if err := env.disk.DeleteWorkDir(name); err != nil {
		return err
	}
	log.Debug("work_dir removed")

	return nil
}
