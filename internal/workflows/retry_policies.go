package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/temporal"
)

// NonRetryableErrorTypes are failures a retry cannot fix
var NonRetryableErrorTypes = []string{
	domain.KindValidation.TypeName(),
	domain.KindNotFound.TypeName(),
	domain.KindInvalidTransition.TypeName(),
	domain.KindState.TypeName(),
}

func queryActivityOptions() workflow.ActivityOptions {
	return temporal.ActivityOptions(time.Minute, nil)
}

// collaborators may stay down for minutes, so reconcile attempts back off further
func reconcileActivityOptions() workflow.ActivityOptions {
	return temporal.ActivityOptions(2*time.Minute,
		temporal.RetryPolicy(5, 5*time.Second, 2*time.Minute, NonRetryableErrorTypes...))
}
