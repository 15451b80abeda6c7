// Package journal keeps a short rolling history of scan outcomes.
package journal

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/buntdb"

	"badgedesk/scan"
)

const (
	DefaultPath      = "scans.db"
	DefaultRetention = 24 * time.Hour
	DefaultLimit     = 50
)

// Config holds journal settings. Path ":memory:" keeps nothing on disk.
type Config struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// Journal stores outcomes with a TTL and lists them newest first.
type Journal struct {
	instance  *buntdb.DB
	retention time.Duration

	mu  sync.Mutex
	seq uint64
}

// Open opens the journal file.
func Open(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Retention < 0 {
		return nil, errors.Errorf("journal retention must be positive, got %s", cfg.Retention)
	}

	db, err := buntdb.Open(cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open scan journal %s failed", cfg.Path)
	}
	return &Journal{instance: db, retention: cfg.Retention}, nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	return j.instance.Close()
}

// Record appends o.
func (j *Journal) Record(o scan.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "marshal outcome failed")
	}
	key := j.nextKey(o.ScanTime)

	err = j.instance.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(data), &buntdb.SetOptions{Expires: true, TTL: j.retention})
		return err
	})
	return errors.Wrap(err, "store outcome failed")
}

// Recent returns up to limit outcomes, newest first. A non-positive limit
// uses DefaultLimit.
func (j *Journal) Recent(limit int) ([]scan.Outcome, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	cutoff := time.Now().Add(-j.retention)

	out := []scan.Outcome{}
	err := j.instance.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.DescendKeys("scan:*", func(key, value string) bool {
			var o scan.Outcome
			if decodeErr = json.Unmarshal([]byte(value), &o); decodeErr != nil {
				decodeErr = errors.Wrapf(decodeErr, "decode %s failed", key)
				return false
			}
			if o.ScanTime.Before(cutoff) {
				return false
			}
			out = append(out, o)
			return len(out) < limit
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	if err != nil {
		return nil, errors.Wrap(err, "list outcomes failed")
	}
	return out, nil
}

// ObserveScan records o, logging failures.
func (j *Journal) ObserveScan(o scan.Outcome) {
	if err := j.Record(o); err != nil {
		log.Warnf("Journal scan: %v", err)
	}
}

// nextKey orders keys by scan time; seq keeps equal times distinct.
func (j *Journal) nextKey(at time.Time) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	return fmt.Sprintf("scan:%020d:%06d", at.UnixNano(), j.seq%1000000)
}
