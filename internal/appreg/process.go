package appreg

import (
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessTable answers process-tree questions.
type ProcessTable interface {
	Executable(pid int) (string, error)
	Parent(pid int) (int, error)
	Exists(pid int) (bool, error)
}

// SystemProcesses reads the live process table.
type SystemProcesses struct{}

func (SystemProcesses) Executable(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	exe, err := p.Exe()
	if err == nil && exe != "" {
		return exe, nil
	}
	return p.Name()
}

func (SystemProcesses) Parent(pid int) (int, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	ppid, err := p.Ppid()
	if err != nil {
		return 0, err
	}
	return int(ppid), nil
}

func (SystemProcesses) Exists(pid int) (bool, error) {
	return process.PidExists(int32(pid))
}
