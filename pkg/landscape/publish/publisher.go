package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/batch/util/logger"
)

const module = "publish"

// Publisher copies raster files from the engine's scenario directories into
// a Blob under <prefix>/<library>/scenario-<sid>/. A nil *Publisher is valid
// and publishes nothing.
type Publisher struct {
	store  Blob
	prefix string
	log    *slog.Logger
}

// NewPublisher wraps store. prefix may be empty.
func NewPublisher(store Blob, prefix string) *Publisher {
	return &Publisher{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		log:    logger.With("component", module, "driver", string(store.Driver())),
	}
}

// FromConfig opens the configured store. An empty driver disables publishing
// and returns a nil Publisher.
func FromConfig(ctx context.Context, cfg config.PublishConfig) (*Publisher, error) {
	var (
		store Blob
		err   error
	)
	switch Driver(strings.ToLower(cfg.Driver)) {
	case "":
		return nil, nil
	case DriverFilesystem:
		store, err = NewFSStore(cfg.Root)
	case DriverMemory:
		store = NewMemoryStore()
	case DriverS3:
		store, err = NewS3Store(ctx, S3Config{
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
	default:
		return nil, exception.Newf(exception.KindConfiguration, module, "unknown publish driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, exception.New(exception.KindConfiguration, module, "open blob store", err)
	}
	return NewPublisher(store, cfg.Prefix), nil
}

// Store returns the underlying blob store.
func (p *Publisher) Store() Blob {
	if p == nil {
		return nil
	}
	return p.store
}

// Key returns the object key for a file of a scenario.
func (p *Publisher) Key(library string, sid int, parts ...string) string {
	elems := []string{}
	if p.prefix != "" {
		elems = append(elems, p.prefix)
	}
	elems = append(elems, strings.TrimSuffix(filepath.Base(library), filepath.Ext(library)), "scenario-"+strconv.Itoa(sid))
	elems = append(elems, parts...)
	return path.Join(elems...)
}

// PublishOutputs uploads the spatial output rasters of a result scenario.
func (p *Publisher) PublishOutputs(ctx context.Context, library string, sid int, dir string) ([]Info, error) {
	if p == nil {
		return nil, nil
	}
	return p.publishDir(ctx, library, sid, dir, "outputs")
}

// PublishInputs uploads the spatial initial conditions of a scenario.
func (p *Publisher) PublishInputs(ctx context.Context, library string, sid int, dir string) ([]Info, error) {
	if p == nil {
		return nil, nil
	}
	return p.publishDir(ctx, library, sid, dir, "inputs")
}

// publishDir uploads every .tif in dir. Objects already present are skipped
// so a repeated call only sends new rasters.
func (p *Publisher) publishDir(ctx context.Context, library string, sid int, dir, kind string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.New(exception.KindInternal, module, "read "+dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".tif") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []Info
	for _, name := range names {
		key := p.Key(library, sid, kind, name)
		if info, err := p.store.Head(ctx, key); err == nil {
			out = append(out, info)
			continue
		}
		info, err := p.putFile(ctx, key, filepath.Join(dir, name), sid)
		if err != nil {
			return out, exception.New(exception.KindInternal, module, fmt.Sprintf("publish %s", key), err)
		}
		out = append(out, info)
	}
	if len(names) > 0 {
		p.log.Info("published rasters", "sid", sid, "kind", kind, "count", len(names))
	}
	return out, nil
}

func (p *Publisher) putFile(ctx context.Context, key, file string, sid int) (Info, error) {
	f, err := os.Open(file)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	return p.store.Put(ctx, key, f, PutOptions{
		ContentType: contentTypeFor(file),
		Metadata:    map[string]string{"scenario": strconv.Itoa(sid)},
	})
}
