package domain

import "testing"

func TestPrettyName(t *testing.T) {
	t.Run("имя и фамилия", func(t *testing.T) {
		u := User{FirstName: "Иван", LastName: "Петров"}
		if got := u.PrettyName(); got != "Иван Петров" {
			t.Errorf("ожидалось 'Иван Петров', получено %q", got)
		}
	})

	t.Run("только имя", func(t *testing.T) {
		u := User{FirstName: "Иван"}
		if got := u.PrettyName(); got != "Иван" {
			t.Errorf("ожидалось 'Иван', получено %q", got)
		}
	})

	t.Run("падает на телефон, когда нет имени", func(t *testing.T) {
		u := User{PhoneNumber: "+79990001122"}
		if got := u.PrettyName(); got != "+79990001122" {
			t.Errorf("ожидался телефон, получено %q", got)
		}
	})

	t.Run("падает на username, когда нет имени и телефона", func(t *testing.T) {
		u := User{Username: "ivan"}
		if got := u.PrettyName(); got != "ivan" {
			t.Errorf("ожидался username, получено %q", got)
		}
	})

	t.Run("Unnamed, когда нет ничего", func(t *testing.T) {
		u := User{}
		if got := u.PrettyName(); got != Unnamed {
			t.Errorf("ожидался %q, получено %q", Unnamed, got)
		}
	})
}

func TestShortUserToUser(t *testing.T) {
	ds := NewDatasetID()
	s := ShortUser{ID: 42, FullName: "Анна"}
	u := s.ToUser(ds)
	if u.ID != 42 || u.FirstName != "Анна" || u.DatasetUUID != ds {
		t.Errorf("неожиданный результат ToUser: %+v", u)
	}
}
