package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/casualjim/rookery/api"
	"github.com/casualjim/rookery/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client")

	_, err = New(Options{Client: nil, Database: "rookery"})
	require.Error(t, err)
}

func TestConfigDocumentRoundTrip(t *testing.T) {
	cfg := api.Config{
		Name:      "curator",
		AccountID: "acct-1",
		AIModels:  map[string]string{"default": "m"},
		Tools: []api.Step{{
			ID:         "index_tweets",
			InstanceID: "step-1",
			Params:     types.Params{"username": "@owl", "limit": float64(10)},
		}},
		Extra: map[string]any{"persona": "nocturnal"},
	}

	doc, err := configToDocument(cfg)
	require.NoError(t, err)
	assert.Equal(t, "nocturnal", doc["persona"], "extra keys flatten into the document")
	assert.Equal(t, "curator", doc["name"])

	back, err := configFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, back.Name)
	assert.Equal(t, cfg.AccountID, back.AccountID)
	require.Len(t, back.Tools, 1)
	assert.Equal(t, "step-1", back.Tools[0].InstanceID)
	assert.Equal(t, "@owl", back.Tools[0].Params["username"])
	assert.Equal(t, "nocturnal", back.Extra["persona"])
}

func TestFromBSON(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	oid := primitive.NewObjectID()

	in := bson.M{
		"when":  primitive.NewDateTimeFromTime(at),
		"ref":   oid,
		"items": bson.A{bson.M{"n": int32(1)}, "two"},
	}
	out := fromBSON(in).(map[string]any)

	assert.Equal(t, at, out["when"].(time.Time))
	assert.Equal(t, oid.Hex(), out["ref"])
	items := out["items"].([]any)
	assert.Equal(t, int32(1), items[0].(map[string]any)["n"])
	assert.Equal(t, "two", items[1])
}

func TestUpdateFields(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	set, err := updateFields(map[string]any{
		"status":    api.StatusRunning,
		"next_run":  time.Date(2025, 3, 1, 4, 0, 0, 0, loc),
		"is_active": false,
	})
	require.NoError(t, err)

	assert.Equal(t, "running", set["status"])
	assert.Equal(t, time.UTC, set["next_run"].(time.Time).Location())
	assert.Equal(t, false, set["is_active"])
}

func TestRecordFromDocument(t *testing.T) {
	doc := agentDocument{
		ID:        "a1",
		Config:    bson.M{"name": "curator", "persona": "nocturnal"},
		OwnerID:   "parent",
		Status:    "scheduled",
		NextRun:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		IsActive:  true,
		UpdatedAt: time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC),
	}

	record, err := recordFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, "a1", record.ID)
	assert.Equal(t, "curator", record.Config.Name)
	assert.Equal(t, "nocturnal", record.Config.Extra["persona"])
	assert.Equal(t, api.StatusScheduled, record.Status)
	assert.Equal(t, "parent", record.OwnerID)
}
