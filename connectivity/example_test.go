package connectivity_test

import (
	"context"
	"fmt"

	"github.com/hazyhaar/sidekick/connectivity"
)

func Example() {
	router := connectivity.New()
	defer router.Close()

	router.RegisterLocal("greet", func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte(`"hello"`), nil
	})

	resp := router.Dispatch(context.Background(), connectivity.Message{ID: "m1", Type: "greet"})
	fmt.Println(resp.OK, string(resp.Result))

	resp = router.Dispatch(context.Background(), connectivity.Message{ID: "m2", Type: "shout"})
	fmt.Println(resp.OK, resp.Code)

	// Disable greet without unregistering it.
	router.SetRoute(connectivity.Route{Service: "greet", Strategy: connectivity.StrategyNoop})
	resp = router.Dispatch(context.Background(), connectivity.Message{ID: "m3", Type: "greet"})
	fmt.Println(resp.OK, resp.Result == nil)

	// Output:
	// true "hello"
	// false unknown_operation
	// true true
}
