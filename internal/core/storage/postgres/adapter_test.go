package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	v1 "github.com/aevon-lab/adselect/internal/api/v1"
	"github.com/aevon-lab/adselect/internal/core/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAdapter_SaveImpression(t *testing.T) {
	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		imp        *v1.Impression
		mockResult func(mock sqlmock.Sqlmock, imp *v1.Impression)
		assertions func(t *testing.T, imp *v1.Impression, err error)
	}{
		{
			name: "success sets ingest seq",
			imp: &v1.Impression{
				EventID:     "evt-1",
				UserID:      "u-1",
				BannerID:    "b_Juri",
				PublisherID: "pub-1",
				PaidAmount:  decimal.NewFromInt(17),
				Keywords:    map[string]string{"Rusty": "Max"},
				OccurredAt:  now,
				IngestedAt:  now,
			},
			mockResult: func(mock sqlmock.Sqlmock, imp *v1.Impression) {
				mock.ExpectQuery(regexp.QuoteMeta(querySaveImpression)).
					WithArgs(
						imp.EventID,
						imp.UserID,
						imp.BannerID,
						imp.PublisherID,
						imp.PaidAmount,
						[]byte(`{"Rusty":"Max"}`),
						imp.OccurredAt,
						imp.IngestedAt,
					).
					WillReturnRows(sqlmock.NewRows([]string{"ingest_seq"}).AddRow(int64(42)))
			},
			assertions: func(t *testing.T, imp *v1.Impression, err error) {
				require.NoError(t, err)
				require.Equal(t, int64(42), imp.IngestSeq)
			},
		},
		{
			name: "duplicate maps to ErrDuplicate",
			imp: &v1.Impression{
				EventID:    "evt-dup",
				UserID:     "u-1",
				BannerID:   "b_Juri",
				PaidAmount: decimal.Zero,
				OccurredAt: now,
				IngestedAt: now,
			},
			mockResult: func(mock sqlmock.Sqlmock, imp *v1.Impression) {
				mock.ExpectQuery(regexp.QuoteMeta(querySaveImpression)).
					WithArgs(
						imp.EventID,
						imp.UserID,
						imp.BannerID,
						imp.PublisherID,
						imp.PaidAmount,
						[]byte(`{}`),
						imp.OccurredAt,
						imp.IngestedAt,
					).
					WillReturnRows(sqlmock.NewRows([]string{"ingest_seq"}))
			},
			assertions: func(t *testing.T, imp *v1.Impression, err error) {
				require.ErrorIs(t, err, storage.ErrDuplicate)
				require.Equal(t, int64(0), imp.IngestSeq)
			},
		},
		{
			name: "driver error is wrapped",
			imp: &v1.Impression{
				EventID:    "evt-err",
				UserID:     "u-1",
				BannerID:   "b_Juri",
				PaidAmount: decimal.Zero,
				OccurredAt: now,
				IngestedAt: now,
			},
			mockResult: func(mock sqlmock.Sqlmock, imp *v1.Impression) {
				mock.ExpectQuery(regexp.QuoteMeta(querySaveImpression)).
					WillReturnError(errors.New("connection reset"))
			},
			assertions: func(t *testing.T, imp *v1.Impression, err error) {
				require.ErrorContains(t, err, "failed to save impression")
				require.NotErrorIs(t, err, storage.ErrDuplicate)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adapter, mock, db := newMockAdapter(t)
			defer db.Close()

			tc.mockResult(mock, tc.imp)

			err := adapter.SaveImpression(context.Background(), tc.imp)
			tc.assertions(t, tc.imp, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAdapter_FetchImpressions(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	until := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	since := until.Add(-30 * 24 * time.Hour)
	occurredAt := until.Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(queryFetchImpressions)).
		WithArgs(since, until, int64(100), 2).
		WillReturnRows(sqlmock.NewRows(impressionRowColumns()).
			AddRow("evt-101", "u-1", "b_Juri", "pub-1", "17", []byte(`{"Rusty":"Max"}`), occurredAt, occurredAt, int64(101)).
			AddRow("evt-102", "u-2", "b_Jan", "pub-1", "0.25", []byte(`{}`), occurredAt, occurredAt, int64(102)),
		).RowsWillBeClosed()

	imps, err := adapter.FetchImpressions(context.Background(), since, until, 100, 2)
	require.NoError(t, err)
	require.Len(t, imps, 2)
	require.Equal(t, "evt-101", imps[0].EventID)
	require.Equal(t, int64(101), imps[0].IngestSeq)
	require.True(t, decimal.NewFromInt(17).Equal(imps[0].PaidAmount))
	require.Equal(t, "Max", imps[0].Keywords["Rusty"])
	require.Equal(t, "b_Jan", imps[1].BannerID)
	require.True(t, decimal.RequireFromString("0.25").Equal(imps[1].PaidAmount))
	require.Nil(t, imps[1].Keywords)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_FetchActiveCampaigns(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	now := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery(regexp.QuoteMeta(queryActiveCampaigns)).
		WithArgs(now.Unix()).
		WillReturnRows(sqlmock.NewRows([]string{"campaign_id", "time_start", "time_end", "filter_require", "filter_exclude", "keywords"}).
			AddRow("c_Marci", now.Unix()-10, now.Unix()+10, []byte(`{"Rusty":"Max"}`), []byte(`{"Santa":"Malaclypse"}`), []byte(`{}`)),
		)
	mock.ExpectQuery(regexp.QuoteMeta(queryBannersForCampaigns)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"banner_id", "campaign_id", "banner_size", "keywords"}).
			AddRow("b_Juri", "c_Marci", "10x10", []byte(`{"Carolyn":"Lyndon"}`)).
			AddRow("b_Shirley", "c_Marci", "25x25", []byte(`{"Sidney":"Jane"}`)),
		)

	campaigns, err := adapter.FetchActiveCampaigns(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, campaigns, 1)

	c := campaigns[0]
	require.Equal(t, "c_Marci", c.CampaignID)
	require.Equal(t, map[string]string{"Rusty": "Max"}, c.Filters.Require)
	require.Equal(t, map[string]string{"Santa": "Malaclypse"}, c.Filters.Exclude)
	require.Nil(t, c.Keywords)
	require.Len(t, c.Banners, 2)
	require.Equal(t, "b_Juri", c.Banners[0].BannerID)
	require.Equal(t, "Lyndon", c.Banners[0].Keywords["Carolyn"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_FetchActiveCampaignsSkipsBannerQueryWhenEmpty(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	now := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectQuery(regexp.QuoteMeta(queryActiveCampaigns)).
		WithArgs(now.Unix()).
		WillReturnRows(sqlmock.NewRows([]string{"campaign_id", "time_start", "time_end", "filter_require", "filter_exclude", "keywords"}))

	campaigns, err := adapter.FetchActiveCampaigns(context.Background(), now)
	require.NoError(t, err)
	require.Empty(t, campaigns)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_FetchActiveCampaignsPropagatesError(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	dbErr := errors.New("db down")
	mock.ExpectQuery(regexp.QuoteMeta(queryActiveCampaigns)).WillReturnError(dbErr)

	_, err := adapter.FetchActiveCampaigns(context.Background(), time.Now())
	require.ErrorIs(t, err, dbErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_UpsertCampaign(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	campaign := &v1.Campaign{
		CampaignID: "c_Marci",
		TimeStart:  100,
		TimeEnd:    200,
		Filters:    v1.Filters{Require: map[string]string{"Rusty": "Max"}},
		Banners: []v1.Banner{
			{BannerID: "b_Juri", CampaignID: "c_Marci", BannerSize: "10x10"},
			{BannerID: "b_Jan", CampaignID: "c_Marci", BannerSize: "50x50"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(queryUpsertCampaign)).
		WithArgs("c_Marci", int64(100), int64(200), []byte(`{"Rusty":"Max"}`), []byte(`{}`), []byte(`{}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryDeleteStaleBanners)).
		WithArgs("c_Marci", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep := mock.ExpectPrepare(regexp.QuoteMeta(queryUpsertBanner))
	prep.ExpectExec().
		WithArgs("b_Juri", "c_Marci", "10x10", []byte(`{}`), 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("b_Jan", "c_Marci", "50x50", []byte(`{}`), 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, adapter.UpsertCampaign(context.Background(), campaign))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_UpsertCampaignRollsBackOnBannerFailure(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	campaign := &v1.Campaign{
		CampaignID: "c",
		TimeStart:  1,
		TimeEnd:    2,
		Banners:    []v1.Banner{{BannerID: "b", CampaignID: "c", BannerSize: "1x1"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(queryUpsertCampaign)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryDeleteStaleBanners)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(regexp.QuoteMeta(queryUpsertBanner)).
		ExpectExec().
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := adapter.UpsertCampaign(context.Background(), campaign)
	require.ErrorContains(t, err, "banner b")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_UpsertBannerUnknownCampaign(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	banner := &v1.Banner{BannerID: "b_new", CampaignID: "c_missing", BannerSize: "1x1"}

	mock.ExpectQuery(regexp.QuoteMeta(queryNextBannerPosition)).
		WithArgs("b_new", "c_missing").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(queryUpsertBanner)).
		WithArgs("b_new", "c_missing", "1x1", []byte(`{}`), 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := adapter.UpsertBanner(context.Background(), banner)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_DeleteCampaign(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(queryDeleteCampaign)).
		WithArgs("c_Marci").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(queryDeleteCampaign)).
		WithArgs("c_Marci").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, adapter.DeleteCampaign(context.Background(), "c_Marci"))
	require.ErrorIs(t, adapter.DeleteCampaign(context.Background(), "c_Marci"), storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_CloseReturnsDBCloseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	dbCloseErr := errors.New("db close failed")

	mock.ExpectPrepare(regexp.QuoteMeta(querySaveImpression)).WillBeClosed()
	stmtSave, err := db.Prepare(querySaveImpression)
	require.NoError(t, err)

	mock.ExpectPrepare(regexp.QuoteMeta(queryFetchImpressions)).WillBeClosed()
	stmtFetch, err := db.Prepare(queryFetchImpressions)
	require.NoError(t, err)

	mock.ExpectClose().WillReturnError(dbCloseErr)

	adapter := &Adapter{
		db:                   db,
		stmtSaveImpression:   stmtSave,
		stmtFetchImpressions: stmtFetch,
	}

	err = adapter.Close()
	require.Error(t, err)
	require.ErrorContains(t, err, "failed to close database")
	require.ErrorIs(t, err, dbCloseErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateSchema_MissingTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryTablesPresent)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	err = validateSchema(db)
	require.ErrorContains(t, err, "found 2")
	require.NoError(t, mock.ExpectationsWereMet())
}

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	adapter := &Adapter{
		db:                   db,
		stmtSaveImpression:   mustPrepareStmt(t, db, mock, querySaveImpression),
		stmtFetchImpressions: mustPrepareStmt(t, db, mock, queryFetchImpressions),
	}

	return adapter, mock, db
}

func mustPrepareStmt(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock, query string) *sql.Stmt {
	t.Helper()

	mock.ExpectPrepare(regexp.QuoteMeta(query))
	stmt, err := db.Prepare(query)
	require.NoError(t, err)

	return stmt
}

func impressionRowColumns() []string {
	return []string{
		"event_id",
		"user_id",
		"banner_id",
		"publisher_id",
		"paid_amount",
		"keywords",
		"occurred_at",
		"ingested_at",
		"ingest_seq",
	}
}
