package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"taskcal/internal/gregorian"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
)

// Bucket is the on-disk unit of storage: every one-off task of one
// calendar month, the series anchored in that month and their hidden
// instances.
type Bucket struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	// Normal holds one-off tasks by day of month.
	Normal map[int][]model.Task `json:"normal"`
	// Repetition holds the series anchored in this month.
	Repetition []model.Task `json:"repetition"`
	// Hidden lists suppressed occurrence dates per series id.
	Hidden map[int64][]model.Date `json:"hidden_repetition"`
}

func newBucket(year, month int) *Bucket {
	return &Bucket{
		Year:       year,
		Month:      month,
		Normal:     map[int][]model.Task{},
		Repetition: []model.Task{},
		Hidden:     map[int64][]model.Date{},
	}
}

// Empty reports whether the bucket holds no task of either kind.
func (b *Bucket) Empty() bool {
	for _, tasks := range b.Normal {
		if len(tasks) > 0 {
			return false
		}
	}
	return len(b.Repetition) == 0
}

// HiddenSet returns the hidden dates of one series as a set.
func (b *Bucket) HiddenSet(taskID int64) map[model.Date]bool {
	dates := b.Hidden[taskID]
	if len(dates) == 0 {
		return nil
	}
	set := make(map[model.Date]bool, len(dates))
	for _, d := range dates {
		set[d] = true
	}
	return set
}

func (b *Bucket) ids() []int64 {
	ids := make([]int64, 0)
	for _, tasks := range b.Normal {
		for _, t := range tasks {
			ids = append(ids, t.ID)
		}
	}
	for _, t := range b.Repetition {
		ids = append(ids, t.ID)
	}
	return ids
}

func (b *Bucket) normalize() {
	if b.Normal == nil {
		b.Normal = map[int][]model.Task{}
	}
	if b.Repetition == nil {
		b.Repetition = []model.Task{}
	}
	if b.Hidden == nil {
		b.Hidden = map[int64][]model.Date{}
	}
}

var calendarIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func (s *Store) calendarDir(calendarID string) (string, error) {
	if !calendarIDPattern.MatchString(calendarID) {
		return "", fmt.Errorf("calendar %q: %w", calendarID, model.ErrNotFound)
	}
	return filepath.Join(s.root, calendarID), nil
}

func bucketFileName(year, month int) string {
	return fmt.Sprintf("%04d-%02d.json", year, month)
}

func parseBucketFileName(name string) (gregorian.YearMonth, bool) {
	base, ok := strings.CutSuffix(name, ".json")
	if !ok {
		return gregorian.YearMonth{}, false
	}
	y, m, ok := strings.Cut(base, "-")
	if !ok {
		return gregorian.YearMonth{}, false
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return gregorian.YearMonth{}, false
	}
	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return gregorian.YearMonth{}, false
	}
	return gregorian.YearMonth{Year: year, Month: month}, true
}

// ensureCalendar fails with ErrNotFound unless the calendar directory exists.
func (s *Store) ensureCalendar(calendarID string) (string, error) {
	dir, err := s.calendarDir(calendarID)
	if err != nil {
		return "", err
	}
	info, err := s.fs.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("calendar %q: %w", calendarID, model.ErrNotFound)
		}
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("calendar %q: %w", calendarID, model.ErrNotFound)
	}
	return dir, nil
}

// Calendars lists the calendar ids present under the data folder.
func (s *Store) Calendars() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && calendarIDPattern.MatchString(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Buckets lists the months that have a bucket file, oldest first.
func (s *Store) Buckets(calendarID string) ([]gregorian.YearMonth, error) {
	dir, err := s.ensureCalendar(calendarID)
	if err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, err
	}
	out := make([]gregorian.YearMonth, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ym, ok := parseBucketFileName(e.Name()); ok {
			out = append(out, ym)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

// ReadBucket loads one bucket. A missing file is ErrNotFound.
func (s *Store) ReadBucket(calendarID string, year, month int) (*Bucket, error) {
	dir, err := s.ensureCalendar(calendarID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, bucketFileName(year, month))
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("bucket %s/%04d-%02d: %w", calendarID, year, month, model.ErrNotFound)
		}
		return nil, err
	}
	var b Bucket
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bucket %s: %w", path, err)
	}
	b.Year, b.Month = year, month
	b.normalize()
	return &b, nil
}

// readOrNewBucket is ReadBucket for the write path: a missing bucket is
// created lazily.
func (s *Store) readOrNewBucket(calendarID string, year, month int) (*Bucket, error) {
	b, err := s.ReadBucket(calendarID, year, month)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	if _, cerr := s.ensureCalendar(calendarID); cerr != nil {
		return nil, cerr
	}
	return newBucket(year, month), nil
}

// WriteBucket replaces the bucket file through a temp file + rename so a
// crash never leaves a half-written bucket behind.
func (s *Store) WriteBucket(calendarID string, b *Bucket) error {
	dir, err := s.ensureCalendar(calendarID)
	if err != nil {
		return err
	}
	b.normalize()
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := afero.TempFile(s.fs, dir, ".bucket-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer s.fs.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	path := filepath.Join(dir, bucketFileName(b.Year, b.Month))
	if err := s.fs.Rename(tmpName, path); err != nil {
		return err
	}
	appLog.Debug("bucket written", "calendar", calendarID, "year", b.Year, "month", b.Month)
	return nil
}

// RemoveBucket deletes a bucket file. Removing a missing bucket is not an
// error.
func (s *Store) RemoveBucket(calendarID string, year, month int) error {
	dir, err := s.ensureCalendar(calendarID)
	if err != nil {
		return err
	}
	err = s.fs.Remove(filepath.Join(dir, bucketFileName(year, month)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
