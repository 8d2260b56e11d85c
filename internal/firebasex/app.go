// Package firebasex builds the Firebase app shared by the Firestore
// backend and FCM push.
package firebasex

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// NewApp initialises Firebase for projectID. credentialsFile may be empty,
// in which case application default credentials are used.
func NewApp(ctx context.Context, projectID, credentialsFile string) (*firebase.App, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init failed: %w", err)
	}
	return app, nil
}
