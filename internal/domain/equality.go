package domain

// FileAccessor даёт предикату практического равенства доступ к файлам, на
// которые ссылаются сообщения, без привязки к конкретному DAO или файловой
// системе. Сравнение идёт по дайджесту, а не по сырым байтам, чтобы не грузить
// в память большие вложения (видео, голосовые) при каждом сравнении -
// реализация внутри internal/digest кэширует дайджест на файл на время всего
// запуска.
type FileAccessor interface {
	// Exists сообщает, существует ли файл по относительному пути под данным
	// корнем датасета.
	Exists(root DatasetRoot, relPath string) bool
	// Digest возвращает дайджест содержимого файла по относительному пути.
	Digest(root DatasetRoot, relPath string) (FileDigest, error)
}

// FileDigest - непрозрачный дайджест содержимого файла (в продакшене - sha256).
type FileDigest [32]byte

// filesEqual реализует правило "=~= для файловых ссылок": совпадающие
// дайджесты на обеих сторонах, либо отсутствие файла на обеих сторонах.
// Пустое значение пути на одной из сторон само по себе не означает отсутствие
// файла на другой - сравниваются именно два конкретных пути, переданных
// вызывающим кодом.
func filesEqual(fa FileAccessor, rootA DatasetRoot, pathA string, rootB DatasetRoot, pathB string) (bool, error) {
	if pathA == "" && pathB == "" {
		return true, nil
	}
	existsA := pathA != "" && fa.Exists(rootA, pathA)
	existsB := pathB != "" && fa.Exists(rootB, pathB)
	if !existsA && !existsB {
		return true, nil
	}
	if existsA != existsB {
		return false, nil
	}
	digestA, err := fa.Digest(rootA, pathA)
	if err != nil {
		return false, err
	}
	digestB, err := fa.Digest(rootB, pathB)
	if err != nil {
		return false, err
	}
	return digestA == digestB, nil
}

// ContentsEqual - =~= для Content: тот же вариант, байт-равные файлы в path
// и thumbnail_path (где применимо), и структурное равенство после обнуления
// путевых полей.
func ContentsEqual(a, b Content, rootA, rootB DatasetRoot, fa FileAccessor) (bool, error) {
	if a.Kind != b.Kind {
		return false, nil
	}
	if eq, err := filesEqual(fa, rootA, a.PathOption, rootB, b.PathOption); err != nil || !eq {
		return false, err
	}
	if eq, err := filesEqual(fa, rootA, a.ThumbnailPathOption, rootB, b.ThumbnailPathOption); err != nil || !eq {
		return false, err
	}
	if eq, err := filesEqual(fa, rootA, a.VCardPathOption, rootB, b.VCardPathOption); err != nil || !eq {
		return false, err
	}
	return a.blankPaths() == b.blankPaths(), nil
}

func contentOptionsEqual(a, b *Content, rootA, rootB DatasetRoot, fa FileAccessor) (bool, error) {
	if a == nil && b == nil {
		return true, nil
	}
	if a == nil || b == nil {
		return false, nil
	}
	return ContentsEqual(*a, *b, rootA, rootB, fa)
}

func richTextEqual(a, b []RichTextElement) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// serviceEqual - =~= для Service, с тем же правилом байт-сравнения файлов,
// что и ContentsEqual, для полей-путей GroupEditPhoto/SuggestProfilePhoto.
func serviceEqual(a, b Service, rootA, rootB DatasetRoot, fa FileAccessor) (bool, error) {
	if a.Kind != b.Kind {
		return false, nil
	}
	if a.Kind == SvcGroupEditPhoto || a.Kind == SvcSuggestProfilePhoto {
		if eq, err := filesEqual(fa, rootA, a.PhotoPathOption, rootB, b.PhotoPathOption); err != nil || !eq {
			return false, err
		}
	}
	if !stringsEqual(a.MemberNames, b.MemberNames) {
		return false, nil
	}
	return a.Kind == b.Kind &&
	a.DurationSecOption == b.DurationSecOption &&
	a.DiscardReasonOption == b.DiscardReasonOption &&
	a.Text == b.Text &&
	a.Title == b.Title &&
	a.MigrateToChatID == b.MigrateToChatID &&
	a.IsBlocked == b.IsBlocked, nil
}

func typedEqual(a, b Typed, rootA, rootB DatasetRoot, fa FileAccessor) (bool, error) {
	if a.Kind != b.Kind {
		return false, nil
	}
	switch a.Kind {
	case TypedRegular:
		if a.ReplyToSourceIDOption != b.ReplyToSourceIDOption {
			return false, nil
		}
		if !richTextEqual(a.Text, b.Text) {
			return false, nil
		}
		return contentOptionsEqual(a.Content, b.Content, rootA, rootB, fa)
	case TypedService:
		return serviceEqual(a.Service, b.Service, rootA, rootB, fa)
	}
	return true, nil
}

// MessagesEqual - =~= для Message: структурное равенство после обнуления
// internal_id и forward_from_name, с подстановкой =~= для содержимого.
func MessagesEqual(a, b Message, rootA, rootB DatasetRoot, fa FileAccessor) (bool, error) {
	if a.SourceIDOption != b.SourceIDOption ||
	a.Timestamp != b.Timestamp ||
	a.EditTimestampOption != b.EditTimestampOption ||
	a.FromID != b.FromID {
		return false, nil
	}
	return typedEqual(a.Typed, b.Typed, rootA, rootB, fa)
}

// isNewContentCase - "новое содержимое": путь к файлу вложения отсутствует у
// мастера, но присутствует у слейва. В этом случае сообщения не должны
// совпадать даже при структурном равенстве остальных полей - слияние обязано
// забрать новый файл через Replace. Правило применяется одинаково ко всем
// путевым вариантам Content и к паре служебных сообщений GroupEditPhoto.
func isNewContentCase(a, b Message, rootA, rootB DatasetRoot, fa FileAccessor) bool {
	switch {
	case a.Typed.Kind == TypedRegular && b.Typed.Kind == TypedRegular:
		ac, bc := a.Typed.Content, b.Typed.Content
		if ac == nil || bc == nil || ac.Kind != bc.Kind {
			return false
		}
		if !ac.hasPath() || !bc.hasPath() {
			return false
		}
		if ac.PathOption == "" || bc.PathOption == "" {
			return false
		}
		return !fa.Exists(rootA, ac.PathOption) && fa.Exists(rootB, bc.PathOption)
	case a.Typed.Kind == TypedService && b.Typed.Kind == TypedService &&
		a.Typed.Service.Kind == SvcGroupEditPhoto && b.Typed.Service.Kind == SvcGroupEditPhoto:
		ap, bp := a.Typed.Service.PhotoPathOption, b.Typed.Service.PhotoPathOption
		if ap == "" || bp == "" {
			return false
		}
		return !fa.Exists(rootA, ap) && fa.Exists(rootB, bp)
	default:
		return false
	}
}

// ContentAwareEqual - =~= с учётом содержимого, используемое диффом для
// проверки состояния Match: новое содержимое (см. isNewContentCase) всегда
// не равно; в остальных случаях содержимое обнуляется целиком и сравниваются
// только структурные поля (a.Timestamp, a.FromID, source_id и текст).
func ContentAwareEqual(a, b Message, rootA, rootB DatasetRoot, fa FileAccessor) bool {
	if isNewContentCase(a, b, rootA, rootB, fa) {
		return false
	}
	if a.SourceIDOption != b.SourceIDOption ||
	a.Timestamp != b.Timestamp ||
	a.EditTimestampOption != b.EditTimestampOption ||
	a.FromID != b.FromID {
		return false
	}
	if a.Typed.Kind != b.Typed.Kind {
		return false
	}
	switch a.Typed.Kind {
	case TypedRegular:
		return a.Typed.ReplyToSourceIDOption == b.Typed.ReplyToSourceIDOption &&
			richTextEqual(a.Typed.Text, b.Typed.Text)
	case TypedService:
		blankedA, blankedB := a.Typed.Service, b.Typed.Service
		if blankedA.Kind == SvcGroupEditPhoto {
			blankedA.PhotoPathOption, blankedB.PhotoPathOption = "", ""
		}
		eq, _ := serviceEqual(blankedA, blankedB, rootA, rootB, noFileAccess{})
		return eq
	}
	return true
}

// noFileAccess - заглушка FileAccessor для случаев, когда содержимое уже
// гарантированно обнулено и файловое сравнение не требуется.
type noFileAccess struct{}

func (noFileAccess) Exists(DatasetRoot, string) bool { return false }
func (noFileAccess) Digest(DatasetRoot, string) (FileDigest, error) { return FileDigest{}, nil }
