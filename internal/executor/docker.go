package executor

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// ContainerManager is the slice of the container engine the dispatcher needs
// besides the docker CLI itself.
type ContainerManager interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
	ForceRemove(ctx context.Context, name string) error
}

// DockerClient talks to the engine API configured by DOCKER_HOST and
// friends.
type DockerClient struct {
	cli *client.Client
}

func NewDockerClient() (*DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerClient{cli: cli}, nil
}

func (d *DockerClient) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, err := d.cli.ImageInspect(ctx, ref)
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("inspect image %s: %w", ref, err)
}

// ForceRemove kills and removes a container. A container that is already
// gone is not an error.
func (d *DockerClient) ForceRemove(ctx context.Context, name string) error {
	err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	return nil
}

func (d *DockerClient) Close() error {
	return d.cli.Close()
}
