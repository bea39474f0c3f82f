package remote

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/control"
	"github.com/danielpatrickdp/adaptive-allocation/internal/state"
	"github.com/danielpatrickdp/adaptive-allocation/internal/strategy"
)

var (
	_ control.AllocationStore   = (*Client)(nil)
	_ control.ObservationSource = (*Client)(nil)
	_ AllocationServiceServer   = (*Server)(nil)
)

func startServer(t *testing.T) (*Client, *state.Store) {
	t.Helper()
	store, err := state.NewStore(filepath.Join(t.TempDir(), "alloc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	_, err = store.SeedWeights(ctx, "exp", allocation.Weights{"A": 0.5, "B": 0.5})
	require.NoError(t, err)
	require.NoError(t, store.RecordObservation(ctx, state.ObservationRow{ExperimentID: "exp", VariantID: "A", WindowEnd: 60, Trials: 2000, Successes: 100}))
	require.NoError(t, store.RecordObservation(ctx, state.ObservationRow{ExperimentID: "exp", VariantID: "B", WindowEnd: 60, Trials: 2000, Successes: 300}))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterAllocationServiceServer(srv, NewServer(store, store, nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client, err := NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, store
}

func TestReadWeightsAndObservations(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	w, err := client.ReadWeights(ctx, "exp")
	require.NoError(t, err)
	assert.Equal(t, allocation.Weights{"A": 0.5, "B": 0.5}, w)

	obs, err := client.ReadObservations(ctx, "exp", 0, 60)
	require.NoError(t, err)
	assert.Equal(t, allocation.Observation{Trials: 2000, Successes: 100}, obs["A"])
}

func TestRunOnceOverGRPC(t *testing.T) {
	client, store := startServer(t)
	ctx := context.Background()

	c := allocation.Constraints{MinTrials: 1000, MaxStep: 0.05, MinWeight: 0, Epsilon: 1e-9}
	res, err := control.RunOnce(ctx, client, client, control.RunRequest{
		ExperimentID: "exp",
		WindowEnd:    60,
		Strategy:     strategy.ThompsonName,
		Constraints:  &c,
		Seed:         strategy.Seed(9),
	})
	require.NoError(t, err)
	require.True(t, res.WroteUpdate)

	got, err := store.ReadWeights(ctx, "exp")
	require.NoError(t, err)
	assert.Equal(t, res.Allocation.Weights, got)

	versions, err := store.ListVersions(ctx, "exp", 1)
	require.NoError(t, err)
	assert.Contains(t, versions[0].ExplanationJSON, `"thompson"`)
}

func TestNotFoundStatus(t *testing.T) {
	client, _ := startServer(t)

	_, err := client.ReadWeights(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestWriteWeightsRejectsBadMessage(t *testing.T) {
	client, _ := startServer(t)

	in, err := structpb.NewStruct(map[string]any{"experiment_id": "exp", "weights": "nope"})
	require.NoError(t, err)
	err = client.cc.Invoke(context.Background(), WriteWeightsMethod, in, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStructRoundTripKeepsJSONNames(t *testing.T) {
	reason := allocation.HoldMinTrialsNotMet
	s, err := toStruct(writeWeightsRequest{
		ExperimentID: "exp",
		Weights:      allocation.Weights{"A": 1},
		Explanation: allocation.AllocationExplanation{
			Guardrails: allocation.GuardrailExplanation{HoldReason: &reason},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "exp", s.Fields["experiment_id"].GetStringValue())

	var back writeWeightsRequest
	require.NoError(t, fromStruct(s, &back))
	assert.Equal(t, reason, back.Explanation.Guardrails.Hold())
}
