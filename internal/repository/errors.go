package repository

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQLのSQLSTATE
const (
	pgUniqueViolation   = "23505"
	pgCheckViolation    = "23514"
	pgNumericOutOfRange = "22003"
)

// UniqueViolation は一意制約違反の場合に違反した制約名を返す。
func UniqueViolation(err error) (constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// OutOfRange は数値がカラムの範囲外、またはCHECK制約に違反した場合にtrueを返す。
// 累計値のオーバーフローなど、入力値に起因する失敗の判定に使う。
func OutOfRange(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pgNumericOutOfRange || pqErr.Code == pgCheckViolation
}
