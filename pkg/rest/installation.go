// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package rest

import (
	"context"

	"go.uber.org/zap"

	"plinth.io/plinth/pkg/classes"
	"plinth.io/plinth/pkg/errdata"
	"plinth.io/plinth/pkg/objects"
	"plinth.io/plinth/storage"
)

// matchInstallation resolves a device-registration write against existing
// installation records. A single disjunctive lookup finds every record
// matching the object id, the registration id or the device token; the
// precedence rules below decide whether the create silently becomes an
// update and which stale records get pruned.
func (w *Write) matchInstallation(ctx context.Context) error {
	installationID, _ := w.data["installationId"].(string)
	deviceToken, _ := w.data["deviceToken"].(string)

	if w.creating() && installationID == "" && deviceToken == "" && !w.a.Master {
		return errdata.New(errdata.InvalidInstallationID,
			"at least one of installationId or deviceToken must be specified")
	}

	var clauses []interface{}
	if w.objectID != "" {
		clauses = append(clauses, map[string]interface{}{"objectId": w.objectID})
	}
	if installationID != "" {
		clauses = append(clauses, map[string]interface{}{"installationId": installationID})
	}
	if deviceToken != "" {
		clauses = append(clauses, map[string]interface{}{"deviceToken": deviceToken})
	}
	if len(clauses) == 0 {
		return nil
	}

	found, err := w.env.Adapter.Find(ctx, classes.InstallationClass,
		objects.Record{"$or": clauses}, storage.FindOptions{}, nil)
	if err != nil {
		return err
	}

	var idMatch, installationMatch objects.Record
	var tokenMatches []objects.Record
	for _, rec := range found {
		if id, _ := rec["objectId"].(string); w.objectID != "" && id == w.objectID {
			idMatch = rec
		}
		if rid, _ := rec["installationId"].(string); installationID != "" && rid == installationID {
			installationMatch = rec
		}
		if token, _ := rec["deviceToken"].(string); deviceToken != "" && token == deviceToken {
			tokenMatches = append(tokenMatches, rec)
		}
	}

	if w.objectID != "" {
		if idMatch == nil {
			return errdata.New(errdata.ObjectNotFound, "object not found for update")
		}
		// An update against a given record id must not silently change
		// its registration identity.
		existingID, _ := idMatch["installationId"].(string)
		if installationID != "" && existingID != "" && installationID != existingID {
			return errdata.New(errdata.InvalidInstallationID, "installationId may not be changed")
		}
		existingToken, _ := idMatch["deviceToken"].(string)
		if deviceToken != "" && existingToken != "" && deviceToken != existingToken &&
			installationID == "" && existingID == "" {
			return errdata.New(errdata.InvalidInstallationID, "deviceToken may not be changed")
		}
		w.original = idMatch
		return w.pruneCollisions(ctx, idMatch, deviceToken)
	}

	var target objects.Record
	switch {
	case installationMatch != nil:
		target = installationMatch
	case len(tokenMatches) == 1:
		match := tokenMatches[0]
		matchID, _ := match["installationId"].(string)
		if installationID == "" && matchID == "" {
			// Same device token and neither side carries a registration
			// id: treat it as the same installation.
			target = match
		} else if installationID != "" && matchID == "" {
			target = match
		}
	case len(tokenMatches) > 1:
		if installationID == "" {
			return errdata.New(errdata.InvalidInstallationID,
				"must specify installationId when deviceToken matches multiple installations")
		}
		// Stale installations sharing the device token get pruned; the
		// registration id disambiguates the survivor.
		err := w.env.Adapter.Destroy(ctx, classes.InstallationClass, objects.Record{
			"deviceToken":    deviceToken,
			"installationId": map[string]interface{}{"$ne": installationID},
		}, nil)
		if err != nil && !storage.ErrNotFound.Has(err) {
			return err
		}
	}

	if target == nil {
		return nil
	}

	id, _ := target["objectId"].(string)
	w.env.Log.Debug("installation create resolved to update",
		zap.String("objectId", id))
	w.objectID = id
	w.original = target
	return w.pruneCollisions(ctx, target, deviceToken)
}

// pruneCollisions removes other installations that now collide on the new
// device token when the resolved record's token is changing. "Nothing left
// to delete" is not an error here.
func (w *Write) pruneCollisions(ctx context.Context, target objects.Record, deviceToken string) error {
	existingToken, _ := target["deviceToken"].(string)
	if deviceToken == "" || deviceToken == existingToken {
		return nil
	}
	id, _ := target["objectId"].(string)
	err := w.env.Adapter.Destroy(ctx, classes.InstallationClass, objects.Record{
		"deviceToken": deviceToken,
		"objectId":    map[string]interface{}{"$ne": id},
	}, nil)
	if err != nil && !storage.ErrNotFound.Has(err) {
		return err
	}
	return nil
}
