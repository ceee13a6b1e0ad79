package mtp

// This file implements the object-graph traversal semantics of
// spec.md section 4.C: GetObjectHandles only ever returns the direct
// children of one parent, so listing or deleting a subtree requires
// walking Associations (folders) recursively on the client side.

// ListObjectsRecursive returns every object handle reachable from
// parent, depth-first, including parent's own Association children's
// children and so on. Pass 0xFFFFFFFF as parent to list everything
// directly under storageID's root.
func (s *Session) ListObjectsRecursive(storageID, parent uint32) ([]uint32, error) {
	children, err := s.GetObjectHandles(storageID, 0, parent)
	if err != nil {
		return nil, err
	}

	all := make([]uint32, 0, len(children))
	for _, h := range children {
		all = append(all, h)

		info, err := s.GetObjectInfo(h)
		if err != nil {
			return all, err
		}
		if info.ObjectFormat != OFC_Association {
			continue
		}
		sub, err := s.ListObjectsRecursive(storageID, h)
		if err != nil {
			return all, err
		}
		all = append(all, sub...)
	}
	return all, nil
}

// DeleteObjectRecursive deletes handle. If it is an Association
// (folder), its children are deleted first, since devices are not
// required to support OC_DeleteObject cascading to children on their
// own.
func (s *Session) DeleteObjectRecursive(storageID, handle uint32) error {
	info, err := s.GetObjectInfo(handle)
	if err != nil {
		return err
	}
	if info.ObjectFormat == OFC_Association {
		children, err := s.GetObjectHandles(storageID, 0, handle)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := s.DeleteObjectRecursive(storageID, c); err != nil {
				return err
			}
		}
	}
	return s.DeleteObject(handle)
}
