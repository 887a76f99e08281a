package kwstats

import (
	"os"
	"path/filepath"
)

// FileExists reports whether the named file exists.
func FileExists(filename string) bool {
	if _, err := os.Stat(filename); err != nil {
		return !os.IsNotExist(err)
	}
	return true
}

func replaceFile(source, destination string) error {
	if _, err := os.Stat(destination); err == nil {
		if err = os.Remove(destination); err != nil {
			return err
		}
	}

	// Rename the source to the destination (requires same filesystem)
	return os.Rename(source, destination)
}

// writeFileReplace writes data to a temporary file next to path and renames it over path once complete.
func writeFileReplace(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	} else if err = tmp.Close(); err != nil {
		return err
	} else if err = os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return replaceFile(tmpName, path)
}
