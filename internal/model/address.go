package model

import "time"

// OwnedAddress is a wallet address that belongs to the user.
type OwnedAddress struct {
	AddedAt time.Time
	Address string
	Label   string
	Chain   Chain
}

// CalculationRun records a persisted lot matching pass.
type CalculationRun struct {
	RunAt        time.Time
	Method       AccountingMethod
	ID           int64
	Acquisitions int
	Disposals    int
	Gains        int
	Unmatched    int
	OpenLots     int
}
