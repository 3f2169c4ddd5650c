// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package i18n

import "github.com/vorlif/spreak/localize"

// User facing copy that is shared between packages.
const (
	PermissionDeniedTitle   localize.MsgID = "Insufficient Permissions!"
	PermissionDeniedMessage localize.MsgID = "You need to grant location permissions to use this app."
	PermissionPrompt        localize.MsgID = "Allow location-picker to access the location of this device?"
	LocationFailedTitle     localize.MsgID = "Location unavailable"
	LocationFailedMessage   localize.MsgID = "The current location of this device could not be determined."
	AlertDismiss            localize.MsgID = "Press Enter to continue"
	NoLocationPicked        localize.MsgID = "No location picked yet."
	AnswerYes               localize.MsgID = "y"
	AnswerNo                localize.MsgID = "n"
)
