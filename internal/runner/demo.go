package runner

import (
	"context"
	"log"
	"time"
)

// demoJobs are canned submissions used by -demo mode so the server produces
// live traffic without a real automation engine attached.
var demoJobs = []Request{
	{
		Name:      "checkout-flow",
		TargetURL: "https://shop.example.com",
		Steps: []StepSpec{
			{Description: "open product page", Duration: 2 * time.Second},
			{Description: "add to cart", Duration: time.Second},
			{Description: "fill shipping form", Duration: 3 * time.Second},
			{Description: "submit order", Duration: 2 * time.Second},
			{Description: "capture confirmation screenshot", Duration: time.Second},
		},
	},
	{
		Name:      "login-regression",
		TargetURL: "https://app.example.com/login",
		Steps: []StepSpec{
			{Description: "open login page", Duration: time.Second},
			{Description: "fill credentials", Duration: time.Second},
			{Description: "submit form", Duration: 2 * time.Second, Fail: true,
				FailMessage: "expected dashboard, got error banner"},
		},
	},
	{
		Name:      "search-smoke",
		TargetURL: "https://docs.example.com",
		Steps: []StepSpec{
			{Description: "open docs home", Duration: time.Second},
			{Description: "type search query", Duration: time.Second},
			{Description: "verify first result", Duration: 2 * time.Second},
		},
	},
}

// RunDemo submits the canned jobs on a staggered schedule and resubmits the
// set every interval until ctx is cancelled.
func (r *Runner) RunDemo(ctx context.Context, interval time.Duration) {
	for {
		for i, req := range demoJobs {
			rec, err := r.Submit(ctx, req)
			if err != nil {
				log.Printf("demo: submit %s: %v", req.Name, err)
				continue
			}
			log.Printf("demo: started job %s (%s)", rec.ID, req.Name)
			if i < len(demoJobs)-1 && !sleep(ctx, 3*time.Second) {
				return
			}
		}
		if !sleep(ctx, interval) {
			return
		}
	}
}
