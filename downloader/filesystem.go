package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const fsIndexFile = "index.json"

// Caches downloads on disk. Exports are large, so bodies are kept
// as separate files next to a small JSON index.
type Filesystem struct {
	Dir     string
	Records map[string]fsRecord

	TimeNow func() time.Time

	mutex sync.Mutex
}

type fsRecord struct {
	File        string `json:"file"`
	RetrievedAt string `json:"retrieved_at"`
}

func NewFilesystem(dir string) (*Filesystem, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	fs := &Filesystem{
		Dir:     dir,
		Records: map[string]fsRecord{},
		TimeNow: time.Now,
	}

	err = fs.load()
	if err != nil {
		return nil, err
	}

	return fs, nil
}

func (f *Filesystem) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {

	f.mutex.Lock()
	defer f.mutex.Unlock()

	if options.Cache {
		if record, found := f.Records[url]; found {
			retrievedAt, err := time.Parse(time.RFC3339, record.RetrievedAt)
			if err != nil {
				return nil, fmt.Errorf("parsing retrieved_at: %w", err)
			}
			if retrievedAt.Add(options.CacheTTL).After(f.TimeNow()) {
				body, err := os.ReadFile(filepath.Join(f.Dir, record.File))
				if err == nil {
					log.Debug().Str("url", url).Msg("Filesystem cache hit")
					return body, nil
				}
				log.Warn().Err(err).Str("url", url).Msg("Cached file unreadable")
			} else {
				log.Debug().Str("url", url).Msg("Filesystem cache expired")
			}
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}

	if options.Cache {
		sum := sha256.Sum256([]byte(url))
		name := hex.EncodeToString(sum[:]) + ".bin"

		err = os.WriteFile(filepath.Join(f.Dir, name), body, 0644)
		if err != nil {
			return nil, fmt.Errorf("writing body: %w", err)
		}

		f.Records[url] = fsRecord{
			File:        name,
			RetrievedAt: f.TimeNow().UTC().Format(time.RFC3339),
		}
		err = f.save()
		if err != nil {
			return nil, fmt.Errorf("saving: %w", err)
		}
	}

	return body, nil
}

func (f *Filesystem) load() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	path := filepath.Join(f.Dir, fsIndexFile)

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}

	err = json.Unmarshal(buf, &f.Records)
	if err != nil {
		return fmt.Errorf("unmarshalling: %w", err)
	}

	return nil
}

func (f *Filesystem) save() error {
	buf, err := json.Marshal(f.Records)
	if err != nil {
		return fmt.Errorf("marshalling: %w", err)
	}

	err = os.WriteFile(filepath.Join(f.Dir, fsIndexFile), buf, 0644)
	if err != nil {
		return fmt.Errorf("writing: %w", err)
	}

	return nil
}
