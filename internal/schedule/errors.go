/*
 * Copyright (c) 2024, RICH project contributors.
 */
package schedule

import "github.com/rich-project/plexid/internal/cos"

func errTimeslotOutOfRange(ts uint16, size uint32) error {
	return cos.NewErrBadRequest("timeslot %d out of range for slotframe size %d", ts, size)
}

func errBroadcastRequiresSharedOrRX() error {
	return cos.NewErrBadRequest("broadcast target address requires the shared or rx option")
}
