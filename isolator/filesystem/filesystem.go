// Package filesystem is the per-container filesystem isolator: a thin
// bookkeeping layer that records each container's sandbox directory and
// materializes its persistent volumes as symlinks inside it.
package filesystem

import (
	"os"
	"path/filepath"
	"sync"

	uuid "github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/osutil"
)

type ContainerID string

// NewContainerID mints a fresh container identifier.
func NewContainerID() (ContainerID, error) {
	u, err := uuid.NewV4()
	if err != nil {
		return "", errors.Wrap(err, "generating container id")
	}
	return ContainerID(u.String()), nil
}

// ContainerState is the checkpointed record Recover replays after a
// restart.
type ContainerState struct {
	ID        ContainerID
	Directory string
}

// Volume names a persistent volume and the host path backing it. The
// volume appears in the sandbox as a symlink named Name.
type Volume struct {
	Name     string
	HostPath string
}

type containerInfo struct {
	directory string
	links     map[string]string // link name -> host path
}

// Isolator tracks prepared containers. Safe for concurrent use.
type Isolator struct {
	mu    sync.Mutex
	infos map[ContainerID]*containerInfo
}

func New() *Isolator {
	return &Isolator{infos: make(map[ContainerID]*containerInfo)}
}

// Prepare records a new container's sandbox directory. Preparing the
// same container twice is an error.
func (i *Isolator) Prepare(id ContainerID, directory string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.infos[id]; ok {
		return errors.Errorf("container %s has already been prepared", id)
	}
	i.infos[id] = &containerInfo{directory: directory, links: map[string]string{}}
	log.WithFields(log.Fields{"containerID": id, "dir": directory}).Info("Prepared container filesystem")
	return nil
}

// Recover re-populates the table from checkpointed state. Containers
// already known are left untouched.
func (i *Isolator) Recover(states []ContainerState) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, s := range states {
		if _, ok := i.infos[s.ID]; ok {
			continue
		}
		i.infos[s.ID] = &containerInfo{directory: s.Directory, links: map[string]string{}}
	}
}

// Sandbox returns the recorded sandbox directory of a prepared
// container.
func (i *Isolator) Sandbox(id ContainerID) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	info, ok := i.infos[id]
	if !ok {
		return "", false
	}
	return info.directory, true
}

// Update materializes volumes as symlinks in the container's sandbox:
// missing links are created, stale ones removed, unchanged ones left
// alone.
func (i *Isolator) Update(id ContainerID, volumes []Volume) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	info, ok := i.infos[id]
	if !ok {
		return errors.Errorf("unknown container %s", id)
	}

	want := make(map[string]string, len(volumes))
	for _, v := range volumes {
		want[v.Name] = v.HostPath
	}

	for name := range info.links {
		if _, keep := want[name]; keep {
			continue
		}
		link := filepath.Join(info.directory, name)
		if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing stale volume link %q", link)
		}
		delete(info.links, name)
		log.WithFields(log.Fields{"containerID": id, "volume": name}).Debug("Removed volume link")
	}

	for name, host := range want {
		if info.links[name] == host {
			continue
		}
		link := filepath.Join(info.directory, name)
		if err := osutil.Symlink(host, link); err != nil {
			return errors.Wrapf(err, "linking volume %q for container %s", name, id)
		}
		info.links[name] = host
		log.WithFields(log.Fields{"containerID": id, "volume": name, "host": host}).Debug("Linked volume")
	}
	return nil
}

// Cleanup forgets a container. Unknown ids are ignored so cleanup is
// idempotent.
func (i *Isolator) Cleanup(id ContainerID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.infos, id)
}
