// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package cache

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
)

const (
	DefaultCacheDirName = ".openrdap"
)

// A DiskCache is a RegistryCache in a shared cache directory.
//
// Several processes may share the directory. Each write goes to a temporary
// file which is then renamed into place, so concurrent writers race but
// readers always see a complete file.
type DiskCache struct {
	Dir string

	lastLoadedModTime map[string]time.Time
}

// NewDiskCache creates a DiskCache using the default cache directory
// ($HOME/.openrdap/bootstrap).
func NewDiskCache() *DiskCache {
	d := &DiskCache{
		lastLoadedModTime: make(map[string]time.Time),
	}

	dir, err := homedir.Dir()

	if err != nil {
		panic("Can't determine your home directory")
	}

	d.Dir = filepath.Join(dir, DefaultCacheDirName, "bootstrap")

	return d
}

// NewDiskCacheIn creates a DiskCache using the directory |dir|.
func NewDiskCacheIn(dir string) *DiskCache {
	return &DiskCache{
		Dir:               dir,
		lastLoadedModTime: make(map[string]time.Time),
	}
}

// InitDir creates the cache directory if missing. Returns true if the
// directory was created.
func (d *DiskCache) InitDir() (bool, error) {
	fileInfo, err := os.Stat(d.Dir)
	if err == nil {
		if fileInfo.IsDir() {
			return false, nil
		}

		return false, errors.New("cache dir is not a dir")
	}

	if os.IsNotExist(err) {
		return true, os.MkdirAll(d.Dir, 0775)
	}

	return false, err
}

func (d *DiskCache) Save(filename string, data []byte) error {
	if _, err := d.InitDir(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.Dir, filename+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err = tmp.Chmod(0664); err == nil {
		_, err = tmp.Write(data)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), d.cacheDirPath(filename))
	}
	if err != nil {
		return err
	}

	fileModTime, err := d.modTime(filename)
	if err != nil {
		return err
	}

	d.lastLoadedModTime[filename] = fileModTime

	return nil
}

func (d *DiskCache) Load(filename string) ([]byte, error) {
	fileModTime, err := d.modTime(filename)
	if err != nil {
		return nil, err
	}

	bytes, err := os.ReadFile(d.cacheDirPath(filename))

	if err != nil {
		return nil, err
	}

	d.lastLoadedModTime[filename] = fileModTime

	return bytes, nil
}

func (d *DiskCache) State(filename string) FileState {
	fileModTime, err := d.modTime(filename)
	if err != nil {
		return Absent
	}

	lastLoaded, ok := d.lastLoadedModTime[filename]
	if !ok || fileModTime.After(lastLoaded) {
		return ShouldReload
	}

	return Good
}

func (d *DiskCache) cacheDirPath(filename string) string {
	return filepath.Join(d.Dir, filename)
}

func (d *DiskCache) modTime(filename string) (time.Time, error) {
	fileInfo, err := os.Stat(d.cacheDirPath(filename))
	if err != nil {
		return time.Time{}, err
	}

	return fileInfo.ModTime(), nil
}
