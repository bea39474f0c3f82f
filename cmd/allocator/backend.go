package main

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-allocation/internal/config"
	"github.com/danielpatrickdp/adaptive-allocation/internal/control"
	"github.com/danielpatrickdp/adaptive-allocation/internal/filestore"
	"github.com/danielpatrickdp/adaptive-allocation/internal/httpapi"
	"github.com/danielpatrickdp/adaptive-allocation/internal/remote"
	"github.com/danielpatrickdp/adaptive-allocation/internal/state"
)

// backend is an opened store/source pair.
type backend struct {
	store  control.AllocationStore
	source control.ObservationSource
	// sqlite is set for the sqlite backend only.
	sqlite *state.Store
	close  func() error
}

func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func openBackend(sc config.StoreConfig) (*backend, error) {
	switch sc.Backend {
	case config.BackendSQLite:
		s, err := state.NewStore(sc.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return &backend{store: s, source: s, sqlite: s, close: s.Close}, nil

	case config.BackendFile:
		var opts []filestore.StoreOption
		if sc.ExplanationPath != "" {
			opts = append(opts, filestore.WithExplanationPath(sc.ExplanationPath))
		}
		return &backend{
			store:  filestore.NewStore(sc.WeightsPath, opts...),
			source: filestore.NewSource(sc.ObservationsPath),
		}, nil

	case config.BackendHTTP:
		c := httpapi.NewClient(sc.HTTPURL)
		return &backend{store: c, source: c}, nil

	case config.BackendGRPC:
		c, err := remote.NewClient(sc.GRPCAddr)
		if err != nil {
			return nil, fmt.Errorf("dial grpc store: %w", err)
		}
		return &backend{store: c, source: c, close: c.Close}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
}
