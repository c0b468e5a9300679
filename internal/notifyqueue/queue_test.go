package notifyqueue

import (
	"testing"

	"github.com/google/uuid"
)

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("parsing test uuid: %v", err)
	}
	return id
}

func TestRedisKeyIsDeterministicPerTenantTemplateDate(t *testing.T) {
	id := mustUUID(t, "11111111-1111-1111-1111-111111111111")
	k1 := redisKey(id, "low_balance_digest", "2026-07-31")
	k2 := redisKey(id, "low_balance_digest", "2026-07-31")
	if k1 != k2 {
		t.Fatalf("redisKey should be deterministic, got %q and %q", k1, k2)
	}

	other := mustUUID(t, "22222222-2222-2222-2222-222222222222")
	if redisKey(other, "low_balance_digest", "2026-07-31") == k1 {
		t.Fatal("different tenants must produce different keys")
	}
	if redisKey(id, "other_template", "2026-07-31") == k1 {
		t.Fatal("different templates must produce different keys")
	}
	if redisKey(id, "low_balance_digest", "2026-08-01") == k1 {
		t.Fatal("different dates must produce different keys")
	}
}
