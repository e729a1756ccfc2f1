package feed

// ValidateFreshness checks an incoming round's timestamp against the feed's
// previous round. The round must be strictly newer than the previous
// timestamp extended by the allowed staleness, and must not come from the
// future. Read-only; recording an accepted timestamp is the caller's job.
func ValidateFreshness(reportedMillis, previousSeconds, allowedStaleness, nowSeconds int64) error {
	reportedSeconds := reportedMillis / 1000

	if reportedSeconds <= previousSeconds+allowedStaleness {
		return &NotFreshError{
			ReportedMillis:   reportedMillis,
			PreviousSeconds:  previousSeconds,
			AllowedStaleness: allowedStaleness,
		}
	}
	if reportedSeconds > nowSeconds {
		return &TimestampFromFutureError{ReportedMillis: reportedMillis, NowSeconds: nowSeconds}
	}
	return nil
}
