package radar

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunParamsNormalizeAppliesDefaults(t *testing.T) {
	t.Parallel()

	params := RunParams{}.Normalize(ParamDefaults{LookbackDays: 14, HTMLFallback: true})

	require.Equal(t, ModeReal, params.Mode)
	require.Equal(t, LocaleAll, params.Locale)
	require.Equal(t, 14, params.LookbackDays)
	require.True(t, params.FallbackEnabled())
	require.Len(t, params.Limits, len(Categories))
	for _, category := range Categories {
		require.Zero(t, params.Limits[category])
	}
}

func TestRunParamsNormalizeClamps(t *testing.T) {
	t.Parallel()

	ids := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		ids = append(ids, fmt.Sprintf("src-%d", i))
	}
	disabled := false
	params := RunParams{
		LookbackDays: 400,
		SourceIDs:    ids,
		HTMLFallback: &disabled,
		Limits:       map[Category]int{CategoryAI: 9, CategoryFE: -1, CategoryBE: 3},
	}.Normalize(ParamDefaults{LookbackDays: 14, HTMLFallback: true})

	require.Equal(t, MaxLookbackDays, params.LookbackDays)
	require.Len(t, params.SourceIDs, MaxSourceIDs)
	require.False(t, params.FallbackEnabled())
	require.Equal(t, 5, params.Limits[CategoryAI])
	require.Equal(t, 0, params.Limits[CategoryFE])
	require.Equal(t, 3, params.Limits[CategoryBE])
}

func TestRunParamsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params RunParams
		want   string
	}{
		{name: "valid", params: RunParams{Mode: ModeDummy, Locale: LocaleKO, LookbackDays: 7}},
		{name: "bad mode", params: RunParams{Mode: "fast"}, want: "mode"},
		{name: "bad locale", params: RunParams{Locale: "fr"}, want: "locale"},
		{name: "lookback too large", params: RunParams{LookbackDays: 181}, want: "lookbackDays"},
		{name: "limit too large", params: RunParams{Limits: map[Category]int{CategoryAI: 6}}, want: "limits.AI"},
		{name: "unknown category", params: RunParams{Limits: map[Category]int{"GAMES": 1}}, want: "unknown category"},
		{name: "empty source id", params: RunParams{SourceIDs: []string{""}}, want: "sourceIds"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.params.Validate()
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestFetchErrorClassification(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	netErr := NewNetworkError("https://example.com/feed", cause)
	require.True(t, netErr.Retryable())
	require.ErrorIs(t, netErr, cause)
	require.Equal(t, ErrorKindNetwork, KindOf(fmt.Errorf("wrapped: %w", netErr)))

	require.True(t, NewHTTPError("https://example.com", 503).Retryable())
	notFound := NewHTTPError("https://example.com", 404)
	require.False(t, notFound.Retryable())
	require.Equal(t, "HTTP 404", notFound.Error())

	require.Equal(t, ErrorKind(""), KindOf(cause))

	parseErr := NewParseError("https://example.com/feed", cause)
	require.False(t, parseErr.Retryable())
	require.Equal(t, ErrorKindParse, KindOf(parseErr))
	require.False(t, (&FetchError{Kind: ErrorKindRedirect, Status: 302}).Retryable())
}

func TestSourceReportOK(t *testing.T) {
	t.Parallel()

	require.True(t, SourceReport{Status: 200}.OK())
	require.True(t, SourceReport{Status: 304}.OK())
	require.False(t, SourceReport{Status: 200, ErrorKind: ErrorKindParse}.OK())
	require.False(t, SourceReport{Status: 0}.OK())
}
