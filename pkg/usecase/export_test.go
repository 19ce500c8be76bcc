package usecase

var (
	TruncateDescriptionForTest         = truncateDescription
	TruncateUTF8ForTest                = truncateUTF8
	CreateOrUpdateBigQueryTableForTest = createOrUpdateBigQueryTable
)
