package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/navledger/internal/domain"
)

type memReader struct {
	objects map[string]string
}

func (m *memReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}


func (m *memReader) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func TestSourceRepositoryKey(t *testing.T) {
	repo := NewSourceRepository(&memReader{}, map[string]string{
		"HFMX": "/HFMX/NAVs_Consolidated/",
		"ROOT": "",
	})

	assert.Equal(t, "HFMX/NAVs_Consolidated/a.csv", repo.Key("HFMX", "a.csv"))
	assert.Equal(t, "a.csv", repo.Key("ROOT", "a.csv"))
	assert.Equal(t, "CIX/a.csv", repo.Key("CIX", "a.csv"))
}

func TestSourceRepositoryFetch(t *testing.T) {
	reader := &memReader{objects: map[string]string{
		"CIX/NAVs/file.csv": "ISIN,NAV\n",
	}}
	repo := NewSourceRepository(reader, map[string]string{"CIX": "CIX/NAVs"})

	data, err := repo.Fetch(context.Background(), "CIX", "file.csv")
	require.NoError(t, err)
	assert.Equal(t, "ISIN,NAV\n", string(data))

	_, err = repo.Fetch(context.Background(), "CIX", "missing.csv")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestArchiveKey(t *testing.T) {
	a := domain.Artifact{
		Period: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Source: "HFMX",
		Name:   "CAS_Flexfunds_NAV_03152024 HFMX.csv",
	}
	assert.Equal(t, "archive/2024-03-15/HFMX/CAS_Flexfunds_NAV_03152024 HFMX.csv", ArchiveKey("archive", a))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://already", normaliseEndpoint("http://already", true))
	assert.Equal(t, "https://s3.eu-west-1.amazonaws.com", normaliseEndpoint("https://s3.eu-west-1.amazonaws.com", false))
	assert.Equal(t, "https://localhost", normaliseEndpoint("localhost", true))
}
