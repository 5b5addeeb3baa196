// Package actions runs click, fill and navigate against registry sessions.
//
// Every action follows the same pipeline: resolve the session's page,
// capture its URL and title, act, apply the WaitPolicy and, when the policy
// expects navigation or the action destroyed its own page context, hand the
// page to the navigation engine. A replacement page found by the engine is
// stored back into the registry.
//
// Actions never return errors. They return an ActionResult whose Success
// field callers branch on. An action error whose kind is
// driver.KindContextDestroyed counts as success, because it is what a
// navigating click or submit produces.
package actions
