package binary

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// killProcessTree kills p and every descendant it can see. Descendants are
// collected while p is still alive so they cannot be reparented away, then
// killed deepest first before p itself.
func killProcessTree(p *os.Process) error {
	if p == nil {
		return nil
	}

	root, err := process.NewProcess(int32(p.Pid))
	if err != nil {
		return p.Kill()
	}

	descendants := collectDescendants(root)
	for i := len(descendants) - 1; i >= 0; i-- {
		_ = descendants[i].Kill()
	}
	return p.Kill()
}

// collectDescendants walks the child tree breadth first.
func collectDescendants(root *process.Process) []*process.Process {
	var out []*process.Process
	queue := []*process.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		children, err := p.Children()
		if err != nil {
			continue
		}
		out = append(out, children...)
		queue = append(queue, children...)
	}
	return out
}
