// Package navigation recovers a usable page after an action that may have
// navigated.
//
// An action such as a click can replace the document it runs in, which
// invalidates the page handle it was called on. The browser offers no event
// for "navigation finished", so the Engine waits out a RecoveryPolicy,
// checks the connection, checks whether the original page still answers and,
// if not, picks the active page on the connection with a PageSelector.
//
// The default selector, LastPage, assumes the newest tab is active. It is a
// known weak point when several tabs are open at once.
package navigation
