package storage

import (
	"os"
	"path/filepath"

	"github.com/airrygarments/stylematch/internal/vector"
)

// Footprint returns the on-disk size of a store, or 0 for backends that keep nothing locally.
func Footprint(store vector.Store) (int64, error) {
	s, ok := store.(*SQLiteStore)
	if !ok || s.path == ":memory:" {
		return 0, nil
	}
	return SQLiteFootprint(s.path)
}

// SQLiteFootprint sums the database file and its WAL and shared-memory sidecars.
// Missing files contribute 0.
func SQLiteFootprint(dbPath string) (int64, error) {
	return diskUsageBytes(dbPath, dbPath+"-wal", dbPath+"-shm")
}

func diskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.Walk(p, func(_ string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi != nil && !fi.IsDir() {
				total += fi.Size()
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
