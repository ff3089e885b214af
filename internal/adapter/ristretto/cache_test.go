package ristretto

import (
	"context"
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	val, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(val) != "v" {
		t.Fatalf("Get = (%s, %v, %v)", val, ok, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss after Delete")
	}
}
