package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/orderdesk/apiserver/types"
)

// FileStore keeps users and orders in one JSON document on disk.
//
// Every operation reads the whole document, mutates it in memory and writes
// it back. The mutex only serialises callers sharing this FileStore; other
// processes writing the same file can still lose updates.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type dataFile struct {
	Users  []fileUser    `json:"users"`
	Orders []types.Order `json:"orders"`

	// LastIDs remembers the highest id ever handed out so that deleted ids
	// are not reused. Files written before it existed fall back to the
	// highest id present.
	LastIDs lastIDs `json:"lastIds"`
}

type lastIDs struct {
	User  int64 `json:"user"`
	Order int64 `json:"order"`
}

// UnmarshalJSON accepts order quantities written as any JSON number.
// Fractional values from older files are truncated.
func (d *dataFile) UnmarshalJSON(raw []byte) error {
	type plain dataFile
	var doc struct {
		plain
		Orders []fileOrder `json:"orders"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	*d = dataFile(doc.plain)
	d.Orders = make([]types.Order, 0, len(doc.Orders))
	for _, fo := range doc.Orders {
		quantity, err := fileQuantity(fo.Quantity)
		if err != nil {
			return fmt.Errorf("order %d: %w", fo.ID, err)
		}
		order := fo.Order
		order.Quantity = quantity
		d.Orders = append(d.Orders, order)
	}
	return nil
}

type fileOrder struct {
	types.Order
	Quantity json.Number `json:"quantity"`
}

func fileQuantity(n json.Number) (int, error) {
	if n == "" {
		return 0, nil
	}
	if i, err := n.Int64(); err == nil {
		return clampQuantity(float64(i)), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", n.String())
	}
	return clampQuantity(math.Trunc(f)), nil
}

func clampQuantity(f float64) int {
	switch {
	case f > math.MaxInt32:
		return math.MaxInt32
	case f < math.MinInt32:
		return math.MinInt32
	default:
		return int(f)
	}
}

// fileUser is the on-disk user record; the hash is kept under "password".
type fileUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// NewFileStore opens the data file at path, creating an empty one if needed.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("data file path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	s := &FileStore{path: path}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.write(dataFile{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat data file: %w", err)
	}
	return s, nil
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// update runs fn against the current document and persists the result
// unless fn returns an error.
func (s *FileStore) update(fn func(data *dataFile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(&data); err != nil {
		return err
	}
	return s.write(data)
}

func (s *FileStore) view(fn func(data dataFile) error) error {
	s.mu.Lock()
	data, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(data)
}

func (s *FileStore) read() (dataFile, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return dataFile{}, nil
		}
		return dataFile{}, fmt.Errorf("read data file: %w", err)
	}
	var data dataFile
	if len(strings.TrimSpace(string(raw))) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return dataFile{}, fmt.Errorf("decode data file: %w", err)
	}
	return data, nil
}

func (s *FileStore) write(data dataFile) error {
	if data.Users == nil {
		data.Users = []fileUser{}
	}
	if data.Orders == nil {
		data.Orders = []types.Order{}
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode data file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".data-*.json")
	if err != nil {
		return fmt.Errorf("write data file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write data file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write data file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write data file: %w", err)
	}
	return nil
}

func (d *dataFile) nextUserID() int64 {
	id := d.LastIDs.User
	for _, u := range d.Users {
		if u.ID > id {
			id = u.ID
		}
	}
	d.LastIDs.User = id + 1
	return d.LastIDs.User
}

func (d *dataFile) nextOrderID() int64 {
	id := d.LastIDs.Order
	for _, o := range d.Orders {
		if o.ID > id {
			id = o.ID
		}
	}
	d.LastIDs.Order = id + 1
	return d.LastIDs.Order
}
