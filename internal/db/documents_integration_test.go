//go:build integration

package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

func TestIntegration_SaveAndGetDocument(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()
	item := seedItem(t, db)

	doc := &types.CanonicalDocument{
		WorkItemID: item.ID,
		Title:      "Launch Notes",
		Subtitle:   "What shipped this quarter",
		Author:     "Dana Reyes",
		Body:       "The release is out.",
		BodyHTML:   "<p>The release is out.</p>",
		Media: []types.MediaRef{
			{SourceURL: "https://cdn.example.com/hero.png", AltText: "release chart"},
		},
		MetaDescription: types.TaggedField{Value: "Release summary.", Provenance: types.ProvenanceExtracted},
		Keywords:        []string{"launch", "release"},
		Parser:          "goquery",
		Confidence:      0.91,
		ParsedAt:        time.Now().UTC(),
	}
	require.NoError(t, db.SaveDocument(ctx, doc))
	assert.NotEqual(t, uuid.Nil, doc.ID, "save assigns an ID when missing")

	got, err := db.GetDocument(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Launch Notes", got.Title)
	assert.Equal(t, "Dana Reyes", got.Author)
	require.Len(t, got.Media, 1)
	assert.Equal(t, "release chart", got.Media[0].AltText)
	assert.Equal(t, types.ProvenanceExtracted, got.MetaDescription.Provenance)
	assert.Equal(t, []string{"launch", "release"}, got.Keywords)

	missing, err := db.GetDocument(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIntegration_SaveDocumentReplacesPriorParse(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()
	item := seedItem(t, db)

	first := &types.CanonicalDocument{
		WorkItemID: item.ID,
		Title:      "Draft v1",
		Body:       "First pass.",
		Parser:     "heuristic",
		ParsedAt:   time.Now().UTC(),
	}
	require.NoError(t, db.SaveDocument(ctx, first))

	second := &types.CanonicalDocument{
		WorkItemID: item.ID,
		Title:      "Draft v2",
		Body:       "Second pass.",
		Parser:     "llm",
		ParsedAt:   time.Now().UTC(),
	}
	require.NoError(t, db.SaveDocument(ctx, second))

	got, err := db.GetDocument(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Draft v2", got.Title)
	assert.Equal(t, "llm", got.Parser)
}

func TestIntegration_SetPublishedURL(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()
	item := seedItem(t, db)

	require.NoError(t, db.SaveDocument(ctx, &types.CanonicalDocument{
		WorkItemID: item.ID,
		Title:      "Launch Notes",
		Body:       "Body.",
		Parser:     "goquery",
		ParsedAt:   time.Now().UTC(),
	}))

	url := "https://cms.example.com/articles/launch-notes"
	require.NoError(t, db.SetPublishedURL(ctx, item.ID, url))

	got, err := db.GetDocument(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, url, got.PublishedURL)

	err = db.SetPublishedURL(ctx, uuid.New(), url)
	assert.Error(t, err, "setting a URL on a missing document must fail loudly")
}

func TestIntegration_DeleteDocument(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()
	item := seedItem(t, db)

	require.NoError(t, db.SaveDocument(ctx, &types.CanonicalDocument{
		WorkItemID: item.ID,
		Title:      "Launch Notes",
		Body:       "Body.",
		Parser:     "goquery",
		ParsedAt:   time.Now().UTC(),
	}))
	require.NoError(t, db.DeleteDocument(ctx, item.ID))

	got, err := db.GetDocument(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIntegration_SourceDocuments(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()
	item := seedItem(t, db)

	doc := &types.SourceDocument{
		SourceID:    item.SourceID,
		RevisionTag: "rev-1",
		Title:       "Launch Notes",
		Content:     "<h1>Launch Notes</h1>",
		FetchedAt:   time.Now().UTC(),
	}
	require.NoError(t, db.SaveSourceDocument(ctx, item.ID, doc))

	got, err := db.GetSourceDocument(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rev-1", got.RevisionTag)
	assert.Equal(t, "<h1>Launch Notes</h1>", got.Content)

	// A new revision replaces the snapshot in place.
	doc.RevisionTag = "rev-2"
	doc.Content = "<h1>Launch Notes, edited</h1>"
	require.NoError(t, db.SaveSourceDocument(ctx, item.ID, doc))

	got, err = db.GetSourceDocument(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "rev-2", got.RevisionTag)
	assert.Equal(t, "<h1>Launch Notes, edited</h1>", got.Content)

	missing, err := db.GetSourceDocument(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIntegration_Suggestions(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()
	item := seedItem(t, db)

	saved, err := db.ReplaceSuggestions(ctx, item.ID, []types.Suggestion{
		{
			Field:      types.SuggestionMetaDescription,
			Value:      "A crisp summary of the launch.",
			Provenance: types.ProvenanceAIGenerated,
			Confidence: 0.8,
			Model:      "gemini-2.0-flash",
		},
		{
			Field:      types.SuggestionKeywords,
			Value:      "launch",
			Items:      []string{"launch", "release", "notes"},
			Provenance: types.ProvenanceAIGenerated,
			Confidence: 0.7,
		},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	listed, err := db.ListSuggestions(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	byField := map[types.SuggestionField]types.Suggestion{}
	for _, s := range listed {
		byField[s.Field] = s
	}
	assert.Equal(t, []string{"launch", "release", "notes"}, byField[types.SuggestionKeywords].Items)
	assert.Equal(t, "gemini-2.0-flash", byField[types.SuggestionMetaDescription].Model)

	// Replacing one field leaves the others alone.
	_, err = db.ReplaceSuggestions(ctx, item.ID, []types.Suggestion{
		{Field: types.SuggestionMetaDescription, Value: "A better summary.", Provenance: types.ProvenanceAIGenerated, Confidence: 0.9},
	})
	require.NoError(t, err)

	listed, err = db.ListSuggestions(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	for _, s := range listed {
		if s.Field == types.SuggestionMetaDescription {
			assert.Equal(t, "A better summary.", s.Value)
		}
	}

	require.NoError(t, db.DeleteSuggestions(ctx, item.ID))
	listed, err = db.ListSuggestions(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestIntegration_ListSuggestionCandidates(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	reviewing := seedItem(t, db)
	reviewing = moveTo(t, db, reviewing, types.StatusParsing)
	reviewing = moveTo(t, db, reviewing, types.StatusParsingReview)

	enriched := seedItem(t, db)
	enriched = moveTo(t, db, enriched, types.StatusParsing)
	enriched = moveTo(t, db, enriched, types.StatusParsingReview)
	_, err := db.ReplaceSuggestions(ctx, enriched.ID, []types.Suggestion{
		{Field: types.SuggestionMetaDescription, Value: "Done.", Provenance: types.ProvenanceAIGenerated},
	})
	require.NoError(t, err)

	seedItem(t, db) // still pending, not a candidate

	candidates, err := db.ListSuggestionCandidates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, reviewing.ID, candidates[0].ID)
}
