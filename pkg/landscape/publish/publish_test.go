package publish

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/util/exception"
)

func writeRasters(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("raster "+n), 0o644))
	}
}

func newMockS3Store(t *testing.T, rt http.RoundTripper) *S3Store {
	t.Helper()
	s, err := NewS3Store(context.Background(), S3Config{
		Region:          "us-east-1",
		Bucket:          "rasters",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	require.NoError(t, err)
	return s
}

func TestStores(t *testing.T) {
	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	stores := map[string]Blob{
		"memory": NewMemoryStore(),
		"fs":     fsStore,
		"s3":     newMockS3Store(t, newMockS3()),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Head(ctx, "a/missing.tif")
			assert.ErrorIs(t, err, ErrObjectNotFound)

			info, err := s.Put(ctx, "a/one.tif", strings.NewReader("abc"), PutOptions{ContentType: "image/tiff"})
			require.NoError(t, err)
			assert.Equal(t, int64(3), info.Size)
			_, err = s.Put(ctx, "b/two.tif", strings.NewReader("de"), PutOptions{})
			require.NoError(t, err)

			got, rc, err := s.Get(ctx, "a/one.tif")
			require.NoError(t, err)
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			assert.Equal(t, "abc", string(body))
			assert.Equal(t, "image/tiff", got.ContentType)

			list, err := s.List(ctx, "a/")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "a/one.tif", list[0].Key)
		})
	}
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "../etc/passwd", strings.NewReader("x"), PutOptions{})
	assert.Error(t, err)
	_, err = s.Put(context.Background(), "/abs", strings.NewReader("x"), PutOptions{})
	assert.Error(t, err)
}

func TestPublishOutputs(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "castle.ssim.output", "Scenario-11", "Spatial")
	writeRasters(t, dir, "It0001-Ts0000-sc.tif", "It0001-Ts0001-sc.tif", "notes.txt")

	store := NewMemoryStore()
	p := NewPublisher(store, "/runs/")
	infos, err := p.PublishOutputs(ctx, "/data/castle.ssim", 11, dir)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "runs/castle/scenario-11/outputs/It0001-Ts0000-sc.tif", infos[0].Key)

	all, err := store.List(ctx, "runs/castle/scenario-11/")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "11", all[0].Metadata["scenario"])
}

func TestPublishSkipsExistingObjects(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeRasters(t, dir, "It0001-Ts0000-sc.tif")

	rt := newMockS3()
	p := NewPublisher(newMockS3Store(t, rt), "")
	_, err := p.PublishOutputs(ctx, "castle.ssim", 3, dir)
	require.NoError(t, err)
	writeRasters(t, dir, "It0001-Ts0001-sc.tif")
	infos, err := p.PublishOutputs(ctx, "castle.ssim", 3, dir)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
	assert.Equal(t, 2, rt.puts)
	assert.Contains(t, rt.state, "castle/scenario-3/outputs/It0001-Ts0001-sc.tif")
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	infos, err := p.PublishInputs(context.Background(), "castle.ssim", 1, t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, infos)
	assert.Nil(t, p.Store())
}

func TestPublishMissingDirectory(t *testing.T) {
	p := NewPublisher(NewMemoryStore(), "")
	infos, err := p.PublishInputs(context.Background(), "castle.ssim", 1, filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, err)
	assert.Empty(t, infos)
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()
	p, err := FromConfig(ctx, config.PublishConfig{})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = FromConfig(ctx, config.PublishConfig{Driver: "fs", Root: t.TempDir(), Prefix: "x"})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, p.Store().Driver())

	_, err = FromConfig(ctx, config.PublishConfig{Driver: "ftp"})
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))

	_, err = FromConfig(ctx, config.PublishConfig{Driver: "s3"})
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))
}
