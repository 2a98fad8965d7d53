package credentials

func (s *Store) SetLookupEnv(fn func(string) (string, bool)) {
	s.lookupEnv = fn
}
