package entity

// SystemType identifies a cached protocol value.
type SystemType string

const (
	// SystemLastSyncedBlock is the event sync cursor.
	SystemLastSyncedBlock SystemType = "GENERAL_LAST_BLOCK_NUMBER"
	// SystemMinimumLiquidationCollateral caches the protocol's minimum collateral.
	SystemMinimumLiquidationCollateral SystemType = "MINIMUM_LIQUIDATION_COLLATERAL"
	// SystemLiquidationThresholdPeriod caches the threshold period in blocks.
	SystemLiquidationThresholdPeriod SystemType = "LIQUIDATION_THRESHOLD_PERIOD"
)

func (t SystemType) String() string {
	return string(t)
}
