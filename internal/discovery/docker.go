// Package discovery finds the workloads running on this node. The docker
// implementation treats every running container as one collocated workload.
package discovery

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"

	"colloc-agent/internal/logging"
	"colloc-agent/internal/workload"
)

// cgroup subsystem used to resolve a workload's cgroup path.
const cgroupDefaultSubsystem = "cpu"

// DockerNode discovers running containers through the docker API.
type DockerNode struct {
	client *client.Client
	logger *logrus.Logger

	procRoot string
}

func NewDockerNode() (*DockerNode, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerNode{
		client:   cli,
		logger:   logging.GetLogger(),
		procRoot: "/proc",
	}, nil
}

// GetTasks returns the currently running containers as workloads. Containers
// whose cgroup path cannot be resolved are skipped with a warning rather
// than failing the whole cycle.
func (n *DockerNode) GetTasks(ctx context.Context) ([]workload.Task, error) {
	containers, err := n.client.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	tasks := make([]workload.Task, 0, len(containers))
	for _, c := range containers {
		inspect, err := n.client.ContainerInspect(ctx, c.ID)
		if err != nil {
			n.logger.WithField("container_id", c.ID[:12]).WithError(err).Warn("Failed to inspect container")
			continue
		}
		if inspect.State == nil || !inspect.State.Running || inspect.State.Pid == 0 {
			continue
		}

		cgroupPath, err := findCgroup(n.procRoot, inspect.State.Pid)
		if err != nil {
			n.logger.WithFields(logrus.Fields{
				"container_id": c.ID[:12],
				"pid":          inspect.State.Pid,
			}).WithError(err).Warn("Failed to resolve container cgroup")
			continue
		}

		name := c.ID
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		resources := map[string]float64{}
		if inspect.HostConfig != nil {
			if inspect.HostConfig.NanoCPUs > 0 {
				resources["cpus"] = float64(inspect.HostConfig.NanoCPUs) / 1e9
			}
			if inspect.HostConfig.Memory > 0 {
				resources["mem"] = float64(inspect.HostConfig.Memory)
			}
		}

		tasks = append(tasks, workload.Task{
			ID:         c.ID,
			Name:       name,
			PID:        inspect.State.Pid,
			CgroupPath: cgroupPath,
			Labels:     c.Labels,
			Resources:  resources,
		})
	}

	n.logger.WithField("tasks", len(tasks)).Debug("Discovered running workloads")
	return tasks, nil
}

func (n *DockerNode) Close() error {
	return n.client.Close()
}

// findCgroup resolves the cgroup path of a PID relative to the cpu subsystem
// (or the unified v2 hierarchy) from /proc/<pid>/cgroup. The path starts
// with a leading "/".
func findCgroup(procRoot string, pid int) (string, error) {
	path := fmt.Sprintf("%s/%d/cgroup", procRoot, pid)
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), ":", 3)
		if len(parts) != 3 {
			continue
		}
		hierarchy, subsystems, cgroupPath := parts[0], parts[1], parts[2]
		// cgroup v2 unified hierarchy.
		if hierarchy == "0" && subsystems == "" {
			return cgroupPath, nil
		}
		for _, subsystem := range strings.Split(subsystems, ",") {
			if subsystem == cgroupDefaultSubsystem {
				return cgroupPath, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no %s cgroup found for pid %d", cgroupDefaultSubsystem, pid)
}
