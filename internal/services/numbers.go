package services

import "github.com/shopspring/decimal"

var trillion = decimal.New(1, 12)

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func trillions(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Div(trillion).Round(places).InexactFloat64()
}
