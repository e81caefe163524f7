package vm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/dockvirt/internal/cloudinit"
	"github.com/jbweber/dockvirt/internal/dockerr"
	"github.com/jbweber/dockvirt/internal/spec"
)

// Up carries vm through the lifecycle state machine: if a domain named
// vm.Name already exists, Up verifies the stored spec is Equivalent to vm
// and, if so, treats this as a readiness-only re-run; a mismatch is reported
// as SpecConflict. Otherwise Up prepares the work_dir, defines and starts
// the domain, and waits for readiness.
//
// hasDockerfile reports whether the project directory being deployed
// carries a Dockerfile, threaded through to the cloud-init seed builder.
func Up(ctx context.Context, env *Environment, vm spec.VMSpec, hasDockerfile bool) (spec.VMInstance, error) {
	log := env.log.WithFields(logrus.Fields{"vm": vm.Name, "op": "up"})

	exists, err := env.driver.Exists(vm.Name)
	if err != nil {
		return failInstance(spec.VMInstance{Spec: vm}, err)
	}

	if exists {
		return upExisting(ctx, env, vm, log)
	}
	return upNew(ctx, env, vm, hasDockerfile, log)
}

func upExisting(ctx context.Context, env *Environment, vm spec.VMSpec, log *logrus.Entry) (spec.VMInstance, error) {
	stored, err := env.driver.LoadSpec(vm.Name)
	if err != nil {
		return failInstance(spec.VMInstance{Spec: vm}, err)
	}
	if !vm.Equivalent(stored) {
		err := dockerr.New(dockerr.SpecConflict, vm.Name, "run `dockvirt down` before redeploying with a different image/port", fmt.Errorf("running domain's spec (%s:%d) differs from requested (%s:%d)", stored.Image, stored.Port, vm.Image, vm.Port))
		return failInstance(spec.VMInstance{Spec: vm}, err)
	}

	log.Debug("domain already running with matching spec, probing readiness")
	return finishUp(ctx, env, spec.VMInstance{
		Spec:        vm,
		WorkDir:     env.disk.WorkDir(vm.Name),
		DiskPath:    env.disk.DiskPath(vm.Name),
		SeedISOPath: env.disk.SeedISOPath(vm.Name),
		Phase:       spec.PhaseRunning,
	})
}

func upNew(ctx context.Context, env *Environment, vm spec.VMSpec, hasDockerfile bool, log *logrus.Entry) (spec.VMInstance, error) {
	instance := spec.VMInstance{Spec: vm, Phase: spec.PhaseAbsent}

	img, err := env.lookupImage(vm.OS)
	if err != nil {
		return failInstance(instance, err)
	}

	if err := env.disk.CheckDiskSpace(vm.DiskGB); err != nil {
		return failInstance(instance, err)
	}

	localImage, err := env.cache.Ensure(ctx, img)
	if err != nil {
		return failInstance(instance, err)
	}

	if err := env.disk.EnsureWorkDir(vm.Name); err != nil {
		return failInstance(instance, err)
	}
	instance.WorkDir = env.disk.WorkDir(vm.Name)

	if err := env.disk.CreateBootDisk(vm.Name, localImage, vm.DiskGB); err != nil {
		_ = env.disk.DeleteWorkDir(vm.Name)
		return failInstance(instance, err)
	}

	isoData, err := cloudinit.GenerateISO(vm, hasDockerfile)
	if err != nil {
		_ = env.disk.DeleteWorkDir(vm.Name)
		return failInstance(instance, err)
	}
	if err := env.disk.WriteSeedISO(vm.Name, isoData); err != nil {
		_ = env.disk.DeleteWorkDir(vm.Name)
		return failInstance(instance, err)
	}

	instance.DiskPath = env.disk.DiskPath(vm.Name)
	instance.SeedISOPath = env.disk.SeedISOPath(vm.Name)
	if err := instance.TransitionToPrepared(); err != nil {
		_ = env.disk.DeleteWorkDir(vm.Name)
		return failInstance(instance, err)
	}
	log.Debug("work_dir prepared")

	if err := env.driver.DefineAndStart(vm, instance.DiskPath, instance.SeedISOPath, img.Variant); err != nil {
		_ = env.disk.DeleteWorkDir(vm.Name)
		return failInstance(instance, err)
	}
	if err := instance.TransitionToDefined(); err != nil {
		rollback(env, vm.Name)
		return failInstance(instance, err)
	}
	if err := instance.TransitionToRunning(); err != nil {
		rollback(env, vm.Name)
		return failInstance(instance, err)
	}
	log.Debug("domain defined and running")

	if err := env.driver.StoreSpec(vm.Name, vm); err != nil {
		rollback(env, vm.Name)
		return failInstance(instance, err)
	}

	return finishUp(ctx, env, instance)
}

// finishUp runs the readiness probe on an instance whose domain is already
// Running, and classifies the result: a lease or HTTP timeout is
// non-fatal (domain stays Running) while any other error triggers rollback.
func finishUp(ctx context.Context, env *Environment, instance spec.VMInstance) (spec.VMInstance, error) {
	ip, _, err := env.prober.Wait(ctx, instance.Spec)
	instance.IP = ip

	if err != nil {
		if dockerr.Is(err, dockerr.LeaseTimeout) || dockerr.Is(err, dockerr.HTTPTimeout) {
			instance.Err = err
			return instance, err
		}
		rollback(env, instance.Spec.Name)
		instance.TransitionToFailed(err)
		return instance, err
	}

	if err := instance.TransitionToReady(ip); err != nil {
		instance.TransitionToFailed(err)
		return instance, err
	}
	return instance, nil
}

// rollback destroys the domain and deletes its work_dir, best-effort,
// since post-definition failures must not leave a half-defined domain.
func rollback(env *Environment, name string) {
	_ = env.driver.Destroy(name)
	_ = env.disk.DeleteWorkDir(name)
}

func failInstance(instance spec.VMInstance, err error) (spec.VMInstance, error) {
	instance.TransitionToFailed(err)
	return instance, err
}
