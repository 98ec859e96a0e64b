package panel

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/nodewarden/warden/internal/models"
)

// DockerDriver restarts and signals node agent containers over the local
// Docker socket. Nodes are matched by their container_name.
type DockerDriver struct {
	cli *client.Client
}

func NewDockerDriver() (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerDriver{cli: cli}, nil
}

func (d *DockerDriver) Restart(ctx context.Context, node models.Node) error {
	id, err := d.containerID(ctx, node)
	if err != nil {
		return err
	}
	if err := d.cli.ContainerRestart(ctx, id, container.StopOptions{}); err != nil {
		return fmt.Errorf("restart container %s: %w", node.ContainerName, err)
	}
	return nil
}

// ForceSync sends SIGHUP, which the node agent handles by reloading its
// configuration from the panel.
func (d *DockerDriver) ForceSync(ctx context.Context, node models.Node) error {
	id, err := d.containerID(ctx, node)
	if err != nil {
		return err
	}
	if err := d.cli.ContainerKill(ctx, id, "SIGHUP"); err != nil {
		return fmt.Errorf("signal container %s: %w", node.ContainerName, err)
	}
	return nil
}

func (d *DockerDriver) containerID(ctx context.Context, node models.Node) (string, error) {
	name := node.ContainerName
	if name == "" {
		return "", fmt.Errorf("node %s has no container_name", node.Name)
	}

	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", fmt.Errorf("list containers: %w", err)
	}

	// The name filter matches substrings; insist on the exact name.
	for _, c := range containers {
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == name {
				return c.ID, nil
			}
		}
	}
	return "", fmt.Errorf("container %q not found", name)
}
