package money

import (
	"database/sql/driver"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// Amount is stored as NUMERIC(24,0) so the raw integer round-trips losslessly
// (±10^18 raw units fits comfortably within ±9.22×10^18 int64 range, and
// NUMERIC(24,0) leaves headroom beyond that for defensive margin). Scale is
// always zero: raw units are integers by construction, so no exponent
// adjustment is ever needed on the way in or out.

// Scan implements sql.Scanner so Amount can be read directly by database/sql
// and pgx callers that pass a *Amount destination.
func (a *Amount) Scan(src any) error {
	var n pgtype.Numeric
	if err := n.Scan(src); err != nil {
		return fmt.Errorf("scanning money.Amount: %w", err)
	}
	if !n.Valid {
		a.raw = 0
		return nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return fmt.Errorf("scanning money.Amount: non-finite numeric value")
	}

	raw := new(big.Int).Set(n.Int)
	if n.Exp > 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil)
		raw.Mul(raw, scale)
	} else if n.Exp < 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil)
		raw.Quo(raw, scale)
	}

	if !raw.IsInt64() {
		return fmt.Errorf("scanning money.Amount: value %s overflows int64 raw units", raw.String())
	}
	a.raw = raw.Int64()
	return nil
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	n := pgtype.Numeric{Int: big.NewInt(a.raw), Exp: 0, Valid: true}
	return n.Value()
}
