package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/service/mocks"
)

func TestProcessBatch_CollectsErrorsWithoutShortCircuit(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)
	ctx := context.Background()
	cfg := domain.SessionConfig{FetchDetails: true}

	summaries := []domain.SummaryRecord{
		{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase, ExternalID: "1"},
		{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase, ExternalID: "2"},
		{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase, ExternalID: "3"},
		{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase, ExternalID: ""},
	}

	src.EXPECT().Process(ctx, summaries[0], cfg).Return(&domain.ProcessedRecord{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase, ExternalID: "1"}, nil)
	src.EXPECT().Process(ctx, summaries[1], cfg).Return(nil, errors.New("detail page timed out"))
	src.EXPECT().Process(ctx, summaries[2], cfg).Return(&domain.ProcessedRecord{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase, ExternalID: "3"}, nil)
	src.EXPECT().Process(ctx, summaries[3], cfg).Return(&domain.ProcessedRecord{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase}, nil)

	var enriched []string
	p := NewProcessor(slog.New(slog.NewTextHandler(io.Discard, nil)), func(rec *domain.ProcessedRecord) {
		enriched = append(enriched, rec.ExternalID)
	})

	res := p.ProcessBatch(ctx, src, summaries, cfg, 4)

	require.Len(t, res.Processed, 2)
	assert.Equal(t, 4, res.Processed[0].SourcePage)
	assert.Equal(t, []string{"1", "3"}, enriched)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, domain.RecordError{ExternalID: "2", Reason: "detail page timed out"}, res.Errors[0])
	assert.Equal(t, domain.ErrMissingNaturalKey.Error(), res.Errors[1].Reason)
}

func TestProcessBatch_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := NewProcessor(slog.New(slog.NewTextHandler(io.Discard, nil)))

	res := p.ProcessBatch(context.Background(), mocks.NewMockSource(ctrl), nil, domain.SessionConfig{}, 1)

	assert.Empty(t, res.Processed)
	assert.Empty(t, res.Errors)
}
